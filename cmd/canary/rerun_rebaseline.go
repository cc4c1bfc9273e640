package main

import (
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/sandialabs/canary/config"
	"github.com/sandialabs/canary/workspace"
)

// rerunCmd implements `canary rerun <filter-expression>`: it creates a new
// session carrying over statuses from the prior one and re-executes only
// the cases filterExpr selects.
func rerunCmd(args []string) error {
	fs := flag.NewFlagSet("rerun", flag.ExitOnError)
	workspaceRoot := fs.String("w", "", "workspace root (default: current directory)")
	sessionID := fs.String("s", "", "session ID to rerun from (default: the most recent session)")
	configPath := fs.String("c", "", "path to a configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("rerun: exactly one filter expression is required")
	}

	log := newLogger(false)
	ws, err := openWorkspace(log, *workspaceRoot)
	if err != nil {
		return err
	}
	id, err := latestSession(ws, *sessionID)
	if err != nil {
		return err
	}
	prior, err := workspace.Load(ws, id)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	next, err := workspace.Rerun(ws, prior, fs.Arg(0), cfg)
	if err != nil {
		return err
	}
	fmt.Printf("created session %s from %s (%d case(s) selected)\n", next.ID, prior.ID, len(next.Cases))
	return nil
}

// rebaselineCmd implements `canary rebaseline <case-id>`.
func rebaselineCmd(args []string) error {
	fs := flag.NewFlagSet("rebaseline", flag.ExitOnError)
	workspaceRoot := fs.String("w", "", "workspace root (default: current directory)")
	sessionID := fs.String("s", "", "session ID (default: the most recent session)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("rebaseline: exactly one case ID is required")
	}

	sess, err := openSession(*workspaceRoot, *sessionID)
	if err != nil {
		return err
	}
	return sess.Rebaseline(fs.Arg(0))
}
