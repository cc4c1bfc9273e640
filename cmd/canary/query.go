package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/sandialabs/canary/workspace"
)

// describeCmd implements `canary describe <case-id>`.
func describeCmd(args []string) error {
	fs := flag.NewFlagSet("describe", flag.ExitOnError)
	workspaceRoot := fs.String("w", "", "workspace root (default: current directory)")
	sessionID := fs.String("s", "", "session ID (default: the most recent session)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("describe: exactly one case ID is required")
	}

	sess, err := openSession(*workspaceRoot, *sessionID)
	if err != nil {
		return err
	}
	tc, err := sess.Describe(fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(tc)
}

// findCmd implements `canary find <filter-expression>`.
func findCmd(args []string) error {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	workspaceRoot := fs.String("w", "", "workspace root (default: current directory)")
	sessionID := fs.String("s", "", "session ID (default: the most recent session)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("find: exactly one filter expression is required")
	}

	sess, err := openSession(*workspaceRoot, *sessionID)
	if err != nil {
		return err
	}
	matches, err := sess.Find(fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(matches)
}

// locationCmd implements `canary location <case-id>`.
func locationCmd(args []string) error {
	fs := flag.NewFlagSet("location", flag.ExitOnError)
	workspaceRoot := fs.String("w", "", "workspace root (default: current directory)")
	sessionID := fs.String("s", "", "session ID (default: the most recent session)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("location: exactly one case ID is required")
	}

	sess, err := openSession(*workspaceRoot, *sessionID)
	if err != nil {
		return err
	}
	loc, err := sess.Location(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Println(loc)
	return nil
}

// statusCmd implements `canary status`: a summary of every case in a
// session by status.
func statusCmd(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	workspaceRoot := fs.String("w", "", "workspace root (default: current directory)")
	sessionID := fs.String("s", "", "session ID (default: the most recent session)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, err := openSession(*workspaceRoot, *sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("session %s: %s\n", sess.ID, summarize(sess.Cases))
	return nil
}

func openSession(workspaceRoot, sessionID string) (*workspace.Session, error) {
	log := newLogger(false)
	ws, err := openWorkspace(log, workspaceRoot)
	if err != nil {
		return nil, err
	}
	id, err := latestSession(ws, sessionID)
	if err != nil {
		return nil, err
	}
	return workspace.Load(ws, id)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling result")
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}
