package workspace

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// Reap removes execution directories left behind by sessions that never
// reached Finish (a crashed or killed `run` invocation), adapted from
// cleanup/cleanup.go's pattern of listing candidates, checking a
// termination condition, and acting only on the ones that satisfy it —
// generalized here from "terminated LoadTest with still-running pods" to
// "session directory with no finishedAt older than maxAge".
func Reap(ws *Workspace, log logr.Logger, maxAge time.Duration) error {
	ids, err := ws.Sessions()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, id := range ids {
		specsPath := filepath.Join(ws.SessionDir(id), "specs.json")
		info, err := os.Stat(specsPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.Error(err, "failed to stat session", "session", id)
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}

		s, err := Load(ws, id)
		if err != nil {
			log.Error(err, "failed to load stale session", "session", id)
			continue
		}
		if s.finished {
			continue
		}

		log.Info("reaping abandoned session", "session", id)
		if err := reapCases(s); err != nil {
			log.Error(err, "failed to reap session cases", "session", id)
		}
	}
	return nil
}

// reapCases removes each non-terminal case's execution directory; it
// leaves terminal cases' directories alone since those results may still
// be worth inspecting.
func reapCases(s *Session) error {
	var firstErr error
	for _, tc := range s.Cases {
		if tc.Status.IsTerminal() || tc.Dir == "" {
			continue
		}
		if err := os.RemoveAll(tc.Dir); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "removing abandoned execution directory %s", tc.Dir)
		}
	}
	return firstErr
}
