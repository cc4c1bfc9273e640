// Package runner implements the Case Runner: spec.md §4.5's
// run(case, pool, ctx) -> status contract. It populates the case's
// execution directory, builds its environment, launches and supervises
// the subprocess, and maps the outcome back onto the TestCase. The
// environment-construction and per-process supervision idiom follows
// podbuilder.go's container/env assembly, adapted from building a
// Kubernetes pod spec to launching a local subprocess under a process
// group.
package runner

import (
	"context"
	"os"
	"time"

	"github.com/go-logr/logr"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/resourcepool"
)

// DefaultResourcePrefix is the environment variable prefix used when the
// session configuration does not override it (SPEC_FULL.md §12.4).
const DefaultResourcePrefix = "CANARY"

// DefaultGracePeriod is how long the runner waits between SIGTERM and
// SIGKILL when terminating a case's process group.
const DefaultGracePeriod = 5 * time.Second

// Runner executes individual TestCases.
type Runner struct {
	Log            logr.Logger
	ResourcePrefix string
	GracePeriod    time.Duration
	SessionEnv     canary.EnvMod
}

// New builds a Runner with the given session-level environment
// modification; ResourcePrefix and GracePeriod take their defaults.
func New(log logr.Logger, sessionEnv canary.EnvMod) *Runner {
	return &Runner{
		Log:            log,
		ResourcePrefix: DefaultResourcePrefix,
		GracePeriod:    DefaultGracePeriod,
		SessionEnv:     sessionEnv,
	}
}

// Run drives tc through its full execution: directory population,
// environment construction, subprocess supervision, status mapping and
// resource release. alloc is the allocation the caller already obtained
// from pool for this case; Run releases it unconditionally before
// returning.
func (r *Runner) Run(ctx context.Context, tc *canary.TestCase, pool *resourcepool.Pool, alloc *resourcepool.Allocation) (canary.Status, error) {
	tc.Allocation = alloc
	defer pool.Release(alloc)

	if err := tc.Transition(canary.Running); err != nil {
		return tc.Status, err
	}
	tc.StartTime = time.Now()

	if err := PopulateDir(tc); err != nil {
		r.Log.Error(err, "failed to populate execution directory", "case", tc.Spec.CaseName())
		return r.finish(tc, canary.Failed, err.Error())
	}

	env := BuildEnv(os.Environ(), r.SessionEnv, tc.Spec.Env, alloc, r.ResourcePrefix)

	timeout := time.Duration(tc.Spec.TimeoutSecs) * time.Second
	result, err := runProcess(ctx, tc.Dir, tc.Spec.Command, env, timeout, r.GracePeriod)
	if err != nil && result == nil {
		return r.finish(tc, canary.Failed, err.Error())
	}

	tc.OutputPath = result.OutputPath

	if ctx.Err() != nil {
		return r.finish(tc, canary.Cancelled, "session cancelled")
	}
	if result.TimedOut {
		return r.finish(tc, canary.Timeout, "exceeded timeout of "+timeout.String())
	}

	code := result.ExitCode
	tc.ExitCode = &code
	raw := canary.StatusForExitCode(code)
	final, reason := canary.ApplyExpectedTransform(tc.Spec.Expected, raw, code)
	return r.finish(tc, final, reason)
}

func (r *Runner) finish(tc *canary.TestCase, status canary.Status, reason string) (canary.Status, error) {
	tc.StopTime = time.Now()
	tc.Reason = reason
	if err := tc.Transition(status); err != nil {
		return tc.Status, err
	}
	return tc.Status, nil
}
