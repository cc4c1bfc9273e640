// Package scheduler implements the Direct Scheduler (spec.md §4.6): a
// single coordinator driving a bounded worker pool over the case DAG to
// completion. The dispatch loop — a concurrency-gated goroutine-per-case
// launch fed by a shared completion channel — is modeled directly on
// tools/runner/runner.go's Runner.Run/runTest, generalized from polling a
// Kubernetes LoadTest's status to waiting on a local subprocess.
package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/filter"
	"github.com/sandialabs/canary/resourcepool"
	"github.com/sandialabs/canary/runner"
)

// DefaultRetryWait bounds how long the coordinator blocks before retrying
// dispatch when every ready case returned ErrNoFitNow (spec.md §4.6
// "Backpressure").
const DefaultRetryWait = 100 * time.Millisecond

// DefaultDeadlockTimeout bounds how long the coordinator waits, with
// nothing running and nothing ready, before declaring a deadlock.
const DefaultDeadlockTimeout = 200 * time.Millisecond

// Scheduler drives a set of TestCases to completion.
type Scheduler struct {
	Log             logr.Logger
	Workers         int
	RetryWait       time.Duration
	DeadlockTimeout time.Duration
}

// New builds a Scheduler with workers concurrent slots. A workers value of
// zero or less uses a single worker.
func New(log logr.Logger, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{Log: log, Workers: workers}
}

type caseResult struct {
	id  string
	err error
}

// Run drives cases (keyed by TestSpec.ID) to a terminal state, using pool
// for resource accounting and run to execute each ready case. It returns
// only a non-nil error for a programming failure in the predicate
// language; resource and execution failures are recorded on the
// individual TestCases instead.
func (s *Scheduler) Run(ctx context.Context, cases map[string]*canary.TestCase, pool *resourcepool.Pool, run *runner.Runner) error {
	s.markMaskedAndDisabled(cases)

	resultCache := map[string]*filter.ResultExpr{}
	getResultExpr := func(exprStr string) (*filter.ResultExpr, error) {
		if exprStr == "" {
			exprStr = canary.DefaultResultExpr
		}
		if e, ok := resultCache[exprStr]; ok {
			return e, nil
		}
		e, err := filter.CompileResult(exprStr)
		if err != nil {
			return nil, err
		}
		resultCache[exprStr] = e
		return e, nil
	}

	dispatched := map[string]bool{}
	completions := make(chan caseResult, len(cases))
	running := 0

	for {
		if allTerminal(cases) {
			break
		}
		if ctx.Err() != nil {
			s.cancelRemaining(cases)
			break
		}

		ready, err := s.computeReady(cases, dispatched, getResultExpr)
		if err != nil {
			return err
		}

		for _, id := range ready {
			if running >= s.Workers {
				break
			}
			tc := cases[id]
			alloc, aerr := pool.Acquire(resourcepool.Request{Counts: map[string]int(tc.Spec.Resources)})
			if aerr != nil {
				var unsat *resourcepool.ErrUnsatisfiable
				if errors.As(aerr, &unsat) {
					tc.Reason = aerr.Error()
					_ = tc.Transition(canary.Skipped)
				}
				continue
			}
			dispatched[id] = true
			running++
			go func(tc *canary.TestCase, alloc *resourcepool.Allocation) {
				_, rerr := run.Run(ctx, tc, pool, alloc)
				completions <- caseResult{id: tc.Spec.ID, err: rerr}
			}(tc, alloc)
		}

		if running == 0 {
			if len(ready) == 0 {
				select {
				case <-time.After(s.deadlockTimeout()):
					s.abortDeadlocked(cases)
				case <-ctx.Done():
					s.cancelRemaining(cases)
				}
				break
			}
			select {
			case res := <-completions:
				running--
				s.applyCompletion(res)
			case <-time.After(s.retryWait()):
			case <-ctx.Done():
			}
			continue
		}

		select {
		case res := <-completions:
			running--
			s.applyCompletion(res)
		case <-ctx.Done():
		}
	}

	for running > 0 {
		res := <-completions
		running--
		s.applyCompletion(res)
	}
	return nil
}

func (s *Scheduler) retryWait() time.Duration {
	if s.RetryWait > 0 {
		return s.RetryWait
	}
	return DefaultRetryWait
}

func (s *Scheduler) deadlockTimeout() time.Duration {
	if s.DeadlockTimeout > 0 {
		return s.DeadlockTimeout
	}
	return DefaultDeadlockTimeout
}

func (s *Scheduler) applyCompletion(res caseResult) {
	if res.err != nil {
		s.Log.Error(res.err, "case transition error", "case", res.id)
	}
}

func (s *Scheduler) markMaskedAndDisabled(cases map[string]*canary.TestCase) {
	for _, tc := range cases {
		switch {
		case tc.Spec.IsMasked():
			tc.Reason = tc.Spec.MaskReason
			_ = tc.Transition(canary.Skipped)
		case !tc.Spec.Enabled:
			tc.Reason = "disabled"
			_ = tc.Transition(canary.Skipped)
		}
	}
}

func (s *Scheduler) abortDeadlocked(cases map[string]*canary.TestCase) {
	for _, tc := range cases {
		if tc.Status.IsTerminal() {
			continue
		}
		tc.Reason = "deadlock: no ready case and none running"
		_ = tc.Transition(canary.NotRun)
	}
}

func (s *Scheduler) cancelRemaining(cases map[string]*canary.TestCase) {
	for _, tc := range cases {
		if tc.Status.IsTerminal() {
			continue
		}
		tc.Reason = "session cancelled"
		_ = tc.Transition(canary.Cancelled)
	}
}

func allTerminal(cases map[string]*canary.TestCase) bool {
	for _, tc := range cases {
		if !tc.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// computeReady returns the not-yet-dispatched cases whose dependencies are
// all terminal and whose `result` predicates are satisfied, sorted by
// (descending runtime estimate, ascending name) per spec.md §4.6's
// tie-break rule. A case whose dependencies are terminal but fail their
// result predicate is marked `skipped` in place and excluded.
func (s *Scheduler) computeReady(cases map[string]*canary.TestCase, dispatched map[string]bool, getResultExpr func(string) (*filter.ResultExpr, error)) ([]string, error) {
	var ready []string
	for id, tc := range cases {
		if tc.Status.IsTerminal() || dispatched[id] {
			continue
		}
		depsTerminal := true
		predicateFailed := false
		for _, depID := range tc.Spec.DependencyIDs {
			dep, ok := cases[depID]
			if !ok || !dep.Status.IsTerminal() {
				depsTerminal = false
				break
			}
			rexpr, err := getResultExpr(tc.Spec.DependencyResults[depID])
			if err != nil {
				return nil, err
			}
			satisfied, err := rexpr.Satisfies(string(dep.Status))
			if err != nil {
				return nil, err
			}
			if !satisfied {
				predicateFailed = true
			}
		}
		if !depsTerminal {
			continue
		}
		if predicateFailed {
			tc.Reason = "dependency result not satisfied"
			_ = tc.Transition(canary.Skipped)
			continue
		}
		ready = append(ready, id)
	}
	sort.Slice(ready, func(i, j int) bool {
		a, b := cases[ready[i]].Spec, cases[ready[j]].Spec
		if a.RuntimeSecs != b.RuntimeSecs {
			return a.RuntimeSecs > b.RuntimeSecs
		}
		return a.Name < b.Name
	})
	return ready, nil
}
