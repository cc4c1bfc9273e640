package batchbackend

import (
	"context"
	"sort"
	"time"

	"github.com/go-logr/logr"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/batch"
	"github.com/sandialabs/canary/graph"
)

// Driver runs a DAG of batches over a Backend (spec.md §4.8). It owns
// inter-batch dependency gating (a batch is not submitted until every
// batch it depends on is terminal); intra-batch ordering is the nested
// Direct Scheduler's job and is opaque to the Driver once a batch is
// submitted. The dispatch shape — a concurrency-gated launch loop fed by a
// shared completion signal — mirrors scheduler.Scheduler's case-level
// loop, one level up the stack.
type Driver struct {
	Log     logr.Logger
	Backend Backend
	Options Options
}

// New builds a Driver with opts' workers clamped to at least 1.
func New(log logr.Logger, backend Backend, opts Options) *Driver {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.GraceFactor <= 0 {
		opts.GraceFactor = 1.5
	}
	return &Driver{Log: log, Backend: backend, Options: opts}
}

// BatchOutcome is the Driver's terminal record for one batch.
type BatchOutcome struct {
	State  State
	Reason string
}

// batchGraph derives the inter-batch dependency graph: batch X depends on
// batch Y if any case in X depends on a case in Y outside X.
func batchGraph(batches []*batch.Batch, cases map[string]*canary.TestCase) *graph.Graph {
	caseToBatch := map[string]string{}
	for _, b := range batches {
		for _, id := range b.CaseIDs {
			caseToBatch[id] = b.ID
		}
	}
	ids := make([]string, len(batches))
	deps := map[string][]string{}
	for i, b := range batches {
		ids[i] = b.ID
		seen := map[string]bool{}
		for _, caseID := range b.CaseIDs {
			tc, ok := cases[caseID]
			if !ok {
				continue
			}
			for _, depID := range tc.Spec.DependencyIDs {
				depBatch, ok := caseToBatch[depID]
				if ok && depBatch != b.ID && !seen[depBatch] {
					seen[depBatch] = true
					deps[b.ID] = append(deps[b.ID], depBatch)
				}
			}
		}
	}
	return graph.New(ids, deps)
}

// Run submits batches to Backend honoring inter-batch dependency order and
// Options.Workers concurrency, polling each in-flight batch until
// terminal. It returns the per-batch outcome map; it never returns an
// error itself — backend and submission failures are recorded as
// BatchOutcome entries. Cases of a batch whose submission failed, or that
// was never dispatched, are marked not_run; cases still non-terminal when
// a submitted batch fails, overruns or is cancelled are marked timeout.
func (d *Driver) Run(ctx context.Context, batches []*batch.Batch, cases map[string]*canary.TestCase) map[string]BatchOutcome {
	g := batchGraph(batches, cases)
	byID := make(map[string]*batch.Batch, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
	}

	outcomes := map[string]BatchOutcome{}
	dispatched := map[string]bool{}
	type completion struct {
		id      string
		outcome BatchOutcome
	}
	done := make(chan completion, len(batches))
	running := 0

	allTerminal := func() bool { return len(outcomes) == len(batches) }

	for {
		if allTerminal() {
			break
		}
		if ctx.Err() != nil {
			d.cancelRemaining(byID, dispatched, outcomes)
			break
		}

		before := len(outcomes)
		ready := d.computeReady(batches, g, outcomes, dispatched, cases)
		madeProgress := len(outcomes) > before

		for _, id := range ready {
			if running >= d.Options.Workers {
				break
			}
			b := byID[id]
			dispatched[id] = true
			running++
			go func(b *batch.Batch) {
				outcome := d.runOne(ctx, b, cases)
				done <- completion{id: b.ID, outcome: outcome}
			}(b)
			madeProgress = true
		}

		if running == 0 {
			if madeProgress {
				continue
			}
			break
		}

		select {
		case c := <-done:
			running--
			outcomes[c.id] = c.outcome
			d.propagateNotRun(byID[c.id], c.outcome, cases)
		case <-ctx.Done():
		}
	}

	for running > 0 {
		c := <-done
		running--
		outcomes[c.id] = c.outcome
		d.propagateNotRun(byID[c.id], c.outcome, cases)
	}
	return outcomes
}

// computeReady returns not-yet-dispatched batch IDs whose every dependency
// batch has a successful (StateDone) outcome, sorted for deterministic
// dispatch order. A batch whose dependency failed is marked not_run
// immediately rather than returned as ready.
func (d *Driver) computeReady(batches []*batch.Batch, g *graph.Graph, outcomes map[string]BatchOutcome, dispatched map[string]bool, cases map[string]*canary.TestCase) []string {
	var ready []string
	for _, b := range batches {
		if dispatched[b.ID] {
			continue
		}
		if _, done := outcomes[b.ID]; done {
			continue
		}
		allOK := true
		blocked := false
		for _, dep := range g.Dependencies(b.ID) {
			outcome, ok := outcomes[dep]
			if !ok {
				allOK = false
				break
			}
			if outcome.State != StateDone {
				blocked = true
			}
		}
		if !allOK {
			continue
		}
		if blocked {
			outcome := BatchOutcome{State: StateFailed, Reason: "ancestor batch did not succeed"}
			outcomes[b.ID] = outcome
			dispatched[b.ID] = true
			d.propagateNotRun(b, outcome, cases)
			continue
		}
		ready = append(ready, b.ID)
	}
	sort.Strings(ready)
	return ready
}

// runOne submits a single batch and polls it to a terminal state.
func (d *Driver) runOne(ctx context.Context, b *batch.Batch, cases map[string]*canary.TestCase) BatchOutcome {
	var batchCases []*canary.TestCase
	var totalRuntime float64
	for _, id := range b.CaseIDs {
		if tc, ok := cases[id]; ok {
			batchCases = append(batchCases, tc)
			totalRuntime += tc.Spec.RuntimeSecs
		}
	}

	h, err := d.Backend.Submit(ctx, SubmitRequest{Batch: b, Cases: batchCases, NodeCount: b.NodeCount})
	if err != nil {
		for _, tc := range batchCases {
			tc.Reason = "batch submission failed"
			_ = tc.Transition(canary.NotRun)
		}
		return BatchOutcome{State: StateFailed, Reason: err.Error()}
	}

	deadline := time.Duration(totalRuntime * d.Options.GraceFactor * float64(time.Second))
	var start time.Time
	if deadline > 0 {
		start = time.Now()
	}

	ticker := time.NewTicker(d.Options.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = d.Backend.Cancel(ctx, h)
			d.markTimedOut(batchCases)
			return BatchOutcome{State: StateFailed, Reason: "session cancelled"}
		case <-ticker.C:
			result, err := d.Backend.Poll(ctx, h)
			if err != nil {
				continue
			}
			switch result.State {
			case StateDone, StateFailed:
				if result.State == StateFailed {
					d.markTimedOut(batchCases)
				}
				return BatchOutcome{State: result.State, Reason: result.Reason}
			}
			if deadline > 0 && time.Since(start) > deadline {
				_ = d.Backend.Cancel(ctx, h)
				d.markTimedOut(batchCases)
				return BatchOutcome{State: StateFailed, Reason: "exceeded runtime + grace period"}
			}
		}
	}
}

// markTimedOut assigns timeout to every non-terminal case of the batch.
// Without backend-reported per-case state it cannot tell cases that were
// in flight from cases that never started, so it treats all of them as
// having been in flight; none is marked not_run.
func (d *Driver) markTimedOut(cases []*canary.TestCase) {
	for _, tc := range cases {
		if tc.Status.IsTerminal() {
			continue
		}
		tc.Reason = "batch exceeded runtime + grace period"
		_ = tc.Transition(canary.Timeout)
	}
}

// propagateNotRun marks cases of a batch that never ran (e.g. because the
// batch itself was never dispatched due to an ancestor failure) not_run.
func (d *Driver) propagateNotRun(b *batch.Batch, outcome BatchOutcome, cases map[string]*canary.TestCase) {
	if outcome.State == StateDone {
		return
	}
	for _, id := range b.CaseIDs {
		tc, ok := cases[id]
		if !ok || tc.Status.IsTerminal() {
			continue
		}
		tc.Reason = outcome.Reason
		_ = tc.Transition(canary.NotRun)
	}
}

func (d *Driver) cancelRemaining(byID map[string]*batch.Batch, dispatched map[string]bool, outcomes map[string]BatchOutcome) {
	for id := range byID {
		if dispatched[id] {
			continue
		}
		if _, done := outcomes[id]; done {
			continue
		}
		outcomes[id] = BatchOutcome{State: StateFailed, Reason: "session cancelled"}
	}
}
