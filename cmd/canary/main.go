package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/batch"
	"github.com/sandialabs/canary/batchbackend"
	"github.com/sandialabs/canary/config"
	"github.com/sandialabs/canary/graph"
	"github.com/sandialabs/canary/workspace"
)

// thin CLI entrypoint wiring the core packages together. It is
// deliberately narrow: generator integration, reporters and the full
// flag surface a production front end would carry are out of scope (see
// the module's design notes); this binary only exercises the operations
// the core exposes directly.
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(config.DefaultExitConfigErr)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var code int
	var err error
	switch cmd {
	case "run":
		code, err = runCmd(args)
	case "status":
		err = statusCmd(args)
	case "describe":
		err = describeCmd(args)
	case "find":
		err = findCmd(args)
	case "location":
		err = locationCmd(args)
	case "rerun":
		err = rerunCmd(args)
	case "rebaseline":
		err = rebaselineCmd(args)
	case "batch-run":
		err = batchRunCmd(args)
	default:
		usage()
		os.Exit(config.DefaultExitConfigErr)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "canary:", err)
		os.Exit(config.DefaultExitConfigErr)
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: canary <run|status|describe|find|location|rerun|rebaseline> [flags]")
}

func newLogger(debug bool) logr.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.Development = true
	}
	z, err := cfg.Build()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(z)
}

// openWorkspace resolves and opens the workspace rooted at root, defaulting
// to the current directory.
func openWorkspace(log logr.Logger, root string) (*workspace.Workspace, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "resolving working directory")
		}
		root = wd
	}
	return workspace.New(log, root)
}

// latestSession resolves explicit to a session ID, or the most recently
// created session under ws when explicit is empty, judged by the
// modification time of the config.json that Create writes once.
func latestSession(ws *workspace.Workspace, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	ids, err := ws.Sessions()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", errors.New("no sessions found; pass -s explicitly or run `canary run` first")
	}
	var latest string
	var latestInfo os.FileInfo
	for _, id := range ids {
		info, err := os.Stat(filepath.Join(ws.SessionDir(id), "config.json"))
		if err != nil {
			continue
		}
		if latestInfo == nil || info.ModTime().After(latestInfo.ModTime()) {
			latest, latestInfo = id, info
		}
	}
	if latest == "" {
		return "", errors.New("no sessions found; pass -s explicitly or run `canary run` first")
	}
	return latest, nil
}

// exitCodeFor derives the process exit code from a finished session's
// cases, per spec.md §9: zero when every case is a pass or skipped, cfg's
// configured non-pass code otherwise.
func exitCodeFor(cfg *config.Config, cases map[string]*canary.TestCase) int {
	for _, tc := range cases {
		if !tc.Status.IsPass() && tc.Status != canary.Skipped {
			return cfg.ExitCodeNonPass
		}
	}
	return config.DefaultExitSuccess
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// buildCaseDAG derives a graph over exactly the supplied cases' IDs, for
// batch partitioning.
func buildCaseDAG(cases map[string]*canary.TestCase) *graph.Graph {
	ids := make([]string, 0, len(cases))
	deps := make(map[string][]string, len(cases))
	for id, tc := range cases {
		ids = append(ids, id)
		var d []string
		for _, dep := range tc.Spec.DependencyIDs {
			if _, ok := cases[dep]; ok {
				d = append(d, dep)
			}
		}
		deps[id] = d
	}
	return graph.New(ids, deps)
}

func casesSlice(cases map[string]*canary.TestCase) []*canary.TestCase {
	out := make([]*canary.TestCase, 0, len(cases))
	for _, tc := range cases {
		out = append(out, tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec.ID < out[j].Spec.ID })
	return out
}

// runBatched partitions cases per opts and drives them through a
// batchbackend.Driver using the local shell backend, re-invoking this same
// binary as `canary batch-run` for each batch (batchbackend/shell.go's
// documented contract).
func runBatched(ctx context.Context, log logr.Logger, ws *workspace.Workspace, sess *workspace.Session, cases map[string]*canary.TestCase, opts batchOptions, configPath string) (*workspace.Session, error) {
	spec, err := parseBatchSpec(opts.Spec)
	if err != nil {
		return nil, err
	}
	g := buildCaseDAG(cases)
	batches, err := batch.Partition(casesSlice(cases), spec, g)
	if err != nil {
		return nil, errors.Wrap(err, "partitioning cases into batches")
	}

	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	driverCmd := []string{exe, "batch-run"}

	backendDir := filepath.Join(ws.SessionDir(sess.ID), "batches")
	for _, b := range batches {
		runCfg := batchRunConfig{WorkspaceRoot: ws.Root, SessionID: sess.ID, ConfigPath: configPath}
		if err := writeBatchRunFile(filepath.Join(backendDir, b.ID), runCfg); err != nil {
			return nil, err
		}
	}
	backend := batchbackend.NewShellBackend(log, backendDir, driverCmd)

	driverOpts := batchbackend.DefaultOptions()
	if opts.Workers > 0 {
		driverOpts.Workers = opts.Workers
	}
	driver := batchbackend.New(log, backend, driverOpts)

	outcomes := driver.Run(ctx, batches, cases)

	for _, b := range batches {
		outcome := outcomes[b.ID]
		if outcome.State == batchbackend.StateDone {
			continue
		}
		for _, id := range b.CaseIDs {
			if err := sess.ApplyUpdate(id); err != nil {
				log.Error(err, "flushing batch-failed case status", "case", id)
			}
		}
	}

	reloaded, err := workspace.Load(ws, sess.ID)
	if err != nil {
		return nil, errors.Wrap(err, "reloading session after batch run")
	}
	return reloaded, nil
}
