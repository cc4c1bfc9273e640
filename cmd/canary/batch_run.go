package main

import (
	"github.com/pkg/errors"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/batchbackend"
	"github.com/sandialabs/canary/config"
	"github.com/sandialabs/canary/runner"
	"github.com/sandialabs/canary/scheduler"
	"github.com/sandialabs/canary/workspace"
)

// batchRunCmd is the nested driver ShellBackend launches per batch
// (batchbackend/shell.go). It runs with its working directory set to the
// batch's directory, where Submit placed batchbackend.BatchCaseFile and
// runBatched placed batchRunFile; it drives just that batch's cases with
// a fresh Direct Scheduler and streams their statuses back into the
// shared session.
func batchRunCmd(args []string) error {
	runCfg, err := readBatchRunFile(".")
	if err != nil {
		return err
	}
	cases, err := batchbackend.LoadBatchCaseFile(".")
	if err != nil {
		return err
	}

	cfg, err := config.Load(runCfg.ConfigPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Logging.Debug)

	ws, err := workspace.New(log, runCfg.WorkspaceRoot)
	if err != nil {
		return err
	}
	sess, err := workspace.Load(ws, runCfg.SessionID)
	if err != nil {
		return errors.Wrap(err, "loading session")
	}

	// runSet holds this batch's own cases (fresh, to be dispatched) plus a
	// read-only terminal snapshot of any case outside the batch that one
	// of them depends on, so the scheduler's readiness check resolves
	// without pulling in cases destined for a different batch run
	// (the Driver only submits this batch once its dependency batches are
	// done, so every such lookup is already terminal).
	runSet := make(map[string]*canary.TestCase, len(cases))
	for _, tc := range cases {
		runSet[tc.Spec.ID] = tc
		for _, depID := range tc.Spec.DependencyIDs {
			if _, ok := runSet[depID]; ok {
				continue
			}
			if dep, ok := sess.Cases[depID]; ok {
				runSet[depID] = dep
			}
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	pool := cfg.Pool(log)
	run := runner.New(log, cfg.SessionEnv())
	run.ResourcePrefix = cfg.ResourcePrefix

	sched := scheduler.New(log, cfg.Workers)
	sched.RetryWait = cfg.RetryWait()
	sched.DeadlockTimeout = cfg.DeadlockTimeout()
	if err := sched.Run(ctx, runSet, pool, run); err != nil {
		return errors.Wrap(err, "running batch cases")
	}

	for _, tc := range cases {
		if err := sess.ApplyUpdate(tc.Spec.ID); err != nil {
			log.Error(err, "flushing batch case status", "case", tc.Spec.ID)
		}
	}
	return nil
}
