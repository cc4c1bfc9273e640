package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/config"
	"github.com/sandialabs/canary/filter"
	"github.com/sandialabs/canary/runner"
	"github.com/sandialabs/canary/scheduler"
	"github.com/sandialabs/canary/workspace"
)

// runCmd implements `canary run`: discover, resolve, freeze, filter, then
// drive the resulting cases to completion either directly (the default)
// or through the Batch Scheduler when `-b` flags are given. It returns
// the process exit code spec.md §9 documents, not just an error.
func runCmd(args []string) (int, error) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	specPath := fs.String("i", "", "path to a spec document (required)")
	workspaceRoot := fs.String("w", "", "workspace root (default: current directory)")
	configPath := fs.String("c", "", "path to a configuration file")
	filterExpr := fs.String("f", "", "Selector/Filter expression restricting which specs run")
	platform := fs.String("platform", "", "host platform string exposed to filter expressions")
	workers := fs.Int("n", 0, "worker count override")
	var batchOpts batchOptions
	fs.Var(&batchOpts, "b", "batch option key=value, repeatable (enables the Batch Scheduler)")
	if err := fs.Parse(args); err != nil {
		return config.DefaultExitConfigErr, err
	}
	if *specPath == "" {
		return config.DefaultExitConfigErr, errors.New("run: -i is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.DefaultExitConfigErr, err
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	log := newLogger(cfg.Logging.Debug)

	ws, err := openWorkspace(log, *workspaceRoot)
	if err != nil {
		return config.DefaultExitConfigErr, err
	}

	universe, err := loadUnresolvedSpecs(*specPath)
	if err != nil {
		return config.DefaultExitConfigErr, err
	}
	for _, u := range universe {
		u.TimeoutSecs = cfg.TimeoutFor(u.TimeoutSecs, u.Keywords)
	}

	specs, err := freezeAll(universe)
	if err != nil {
		return config.DefaultExitConfigErr, err
	}

	if *filterExpr != "" {
		expr, err := filter.Compile(*filterExpr)
		if err != nil {
			return config.DefaultExitConfigErr, errors.Wrap(err, "compiling filter expression")
		}
		if err := filter.Apply(expr, specs, *platform, func(string) string { return "" }); err != nil {
			return config.DefaultExitConfigErr, errors.Wrap(err, "applying filter expression")
		}
	}

	execDir := filepath.Join(ws.CacheDir(), "exec")
	cases := buildCases(specs, execDir)

	sess, err := workspace.Create(ws, cases, cfg)
	if err != nil {
		return config.DefaultExitConfigErr, errors.Wrap(err, "creating session")
	}

	ctx, cancel := signalContext()
	defer cancel()

	pool := cfg.Pool(log)
	run := runner.New(log, cfg.SessionEnv())
	run.ResourcePrefix = cfg.ResourcePrefix

	if batchOpts.Enabled() {
		sess, err = runBatched(ctx, log, ws, sess, cases, batchOpts, *configPath)
		if err != nil {
			return config.DefaultExitAbort, err
		}
		cases = sess.Cases
	} else {
		sched := scheduler.New(log, cfg.Workers)
		sched.RetryWait = cfg.RetryWait()
		sched.DeadlockTimeout = cfg.DeadlockTimeout()
		if err := sched.Run(ctx, cases, pool, run); err != nil {
			return config.DefaultExitAbort, errors.Wrap(err, "running cases")
		}
		for id := range cases {
			if err := sess.ApplyUpdate(id); err != nil {
				log.Error(err, "flushing case status", "case", id)
			}
		}
	}

	if err := sess.Finish(); err != nil {
		return config.DefaultExitAbort, errors.Wrap(err, "finishing session")
	}

	fmt.Fprintf(os.Stdout, "session %s: %s\n", sess.ID, summarize(cases))
	return exitCodeFor(cfg, cases), nil
}

func summarize(cases map[string]*canary.TestCase) string {
	counts := map[canary.Status]int{}
	for _, tc := range cases {
		counts[tc.Status]++
	}
	other := len(cases)
	for _, s := range []canary.Status{canary.Success, canary.Xfail, canary.Xdiff, canary.Failed, canary.Timeout, canary.Skipped, canary.NotRun} {
		other -= counts[s]
	}
	return fmt.Sprintf("%d success, %d failed, %d skipped, %d other",
		counts[canary.Success]+counts[canary.Xfail]+counts[canary.Xdiff],
		counts[canary.Failed]+counts[canary.Timeout],
		counts[canary.Skipped]+counts[canary.NotRun],
		other)
}
