// Package workspace implements the outer Workspace/Session container
// (spec.md §4.9): the on-disk layout under `.canary/`, session lifecycle
// (create/run/finish), the view directory of result symlinks, rerun/
// rebaseline, read-only describe/find/location queries, and the advisory
// timing cache. The snapshot-struct-plus-load-function shape of Workspace
// and Session config is grounded on config/defaults.go's Defaults type.
package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Workspace is the outer container: one `.canary/` control directory plus
// a view directory of result symlinks, per spec.md §4.9's open-question
// resolution (workspace = outer container, session = one `run`).
type Workspace struct {
	Root string
	Log  logr.Logger
}

// New builds a Workspace rooted at root, creating its control directories
// if they do not already exist.
func New(log logr.Logger, root string) (*Workspace, error) {
	ws := &Workspace{Root: root, Log: log}
	for _, dir := range []string{ws.CacheDir(), ws.SessionsDir(), ws.ViewDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating workspace directory %s", dir)
		}
	}
	return ws, nil
}

// CacheDir holds cached TestSpecs, timing data and generator state.
func (w *Workspace) CacheDir() string { return filepath.Join(w.Root, ".canary", "cache") }

// SessionsDir holds one subdirectory per session.
func (w *Workspace) SessionsDir() string { return filepath.Join(w.Root, ".canary", "sessions") }

// SessionDir returns the directory for a specific session ID.
func (w *Workspace) SessionDir(id string) string { return filepath.Join(w.SessionsDir(), id) }

// ViewDir is the "view": a directory of symlinks exposing the latest
// session's execution directories at stable paths.
func (w *Workspace) ViewDir() string { return filepath.Join(w.Root, "session-results") }

// NewSessionID generates a fresh session identifier.
func NewSessionID() string { return uuid.New().String() }

// Sessions lists known session IDs in directory-name order (UUIDs are not
// sortable by creation time; callers needing chronological order
// should consult each session's record).
func (w *Workspace) Sessions() ([]string, error) {
	entries, err := os.ReadDir(w.SessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "listing sessions")
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// writeJSONAtomic marshals v and writes it to path via a temp-file-plus-
// rename, so readers never observe a partially written file (spec.md §5's
// "atomic rename on flush" requirement, applied here to session state as
// well as the timing cache).
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling json")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	return os.Rename(tmp, path)
}
