package workspace

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	canary "github.com/sandialabs/canary/api/v1"
)

// CaseRecord is the persisted view of one TestCase's terminal (or
// in-flight) state, part of the stable specs.json schema (spec.md §6:
// "statuses, durations, exit codes").
type CaseRecord struct {
	Status          canary.Status `json:"status"`
	Reason          string        `json:"reason,omitempty"`
	ExitCode        *int          `json:"exitCode,omitempty"`
	Dir             string        `json:"dir"`
	DurationSeconds float64       `json:"durationSeconds,omitempty"`
}

// sessionRecord is the on-disk shape of specs.json. Extra carries any
// top-level keys this version of the schema does not know about, so a
// round-trip Load-then-Save preserves them (spec.md §6 forward
// compatibility).
type sessionRecord struct {
	ID        string                 `json:"id"`
	CreatedAt time.Time              `json:"createdAt"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
	Specs     []*canary.TestSpec     `json:"specs"`
	Statuses  map[string]*CaseRecord `json:"statuses"`
	Extra     map[string]json.RawMessage `json:"-"`
}

// Session is a single `run` invocation's frozen DAG, mutable statuses, and
// derived view. Sessions are immutable once Finish is called.
type Session struct {
	ws       *Workspace
	ID       string
	Cases    map[string]*canary.TestCase
	config   interface{}
	finished bool

	mu     sync.Mutex
	record sessionRecord
}

// Create freezes cases into a new session: it writes specs.json and
// config.json and returns the Session handle used to drive execution and
// stream status updates.
func Create(ws *Workspace, cases map[string]*canary.TestCase, config interface{}) (*Session, error) {
	id := NewSessionID()
	if err := os.MkdirAll(filepath.Join(ws.SessionDir(id), "batches"), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating session directory for %s", id)
	}

	specs := make([]*canary.TestSpec, 0, len(cases))
	statuses := make(map[string]*CaseRecord, len(cases))
	for _, tc := range cases {
		specs = append(specs, tc.Spec)
		statuses[tc.Spec.ID] = recordFor(tc)
	}

	s := &Session{
		ws:     ws,
		ID:     id,
		Cases:  cases,
		config: config,
		record: sessionRecord{
			ID:        id,
			CreatedAt: time.Now(),
			Specs:     specs,
			Statuses:  statuses,
		},
	}
	if err := s.flushSpecs(); err != nil {
		return nil, err
	}
	if err := writeJSONAtomic(filepath.Join(ws.SessionDir(id), "config.json"), config); err != nil {
		return nil, errors.Wrap(err, "writing config.json")
	}
	return s, nil
}

// Load reopens an existing session by ID, for status queries, rerun, or
// rebaseline. Cases are reconstructed in their last-persisted state;
// execution directories are not re-validated against disk.
func Load(ws *Workspace, id string) (*Session, error) {
	path := filepath.Join(ws.SessionDir(id), "specs.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading session %s", id)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "parsing session %s", id)
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "parsing session %s", id)
	}
	for _, known := range []string{"id", "createdAt", "finishedAt", "specs", "statuses"} {
		delete(raw, known)
	}
	rec.Extra = raw

	cases := make(map[string]*canary.TestCase, len(rec.Specs))
	for _, spec := range rec.Specs {
		rowStatus := rec.Statuses[spec.ID]
		dir := filepath.Join(ws.ViewDir(), spec.CaseName())
		if rowStatus != nil && rowStatus.Dir != "" {
			dir = rowStatus.Dir
		}
		tc := canary.NewTestCase(spec, dir)
		if rowStatus != nil {
			tc.Status = rowStatus.Status
			tc.Reason = rowStatus.Reason
			tc.ExitCode = rowStatus.ExitCode
		}
		cases[spec.ID] = tc
	}

	return &Session{ws: ws, ID: id, Cases: cases, record: rec, finished: rec.FinishedAt != nil}, nil
}

func recordFor(tc *canary.TestCase) *CaseRecord {
	return &CaseRecord{
		Status:          tc.Status,
		Reason:          tc.Reason,
		ExitCode:        tc.ExitCode,
		Dir:             tc.Dir,
		DurationSeconds: tc.Duration().Seconds(),
	}
}

// ApplyUpdate streams one case's current status into the session record
// and flushes it, per spec.md §4.9's "run: streaming status updates back
// to the session file".
func (s *Session) ApplyUpdate(caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc, ok := s.Cases[caseID]
	if !ok {
		return errors.Errorf("workspace: unknown case %q in session %s", caseID, s.ID)
	}
	s.record.Statuses[caseID] = recordFor(tc)
	return s.flushSpecsLocked()
}

// Finish flushes final statuses for every case and refreshes the view.
// Sessions are immutable after Finish.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	for id, tc := range s.Cases {
		s.record.Statuses[id] = recordFor(tc)
	}
	now := time.Now()
	s.record.FinishedAt = &now
	if err := s.flushSpecsLocked(); err != nil {
		return err
	}
	s.finished = true
	return RefreshView(s.ws, s)
}

func (s *Session) flushSpecs() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushSpecsLocked()
}

// flushSpecsLocked re-marshals the session record, merging back any
// unknown top-level keys captured at Load time.
func (s *Session) flushSpecsLocked() error {
	merged := map[string]json.RawMessage{}
	for k, v := range s.record.Extra {
		merged[k] = v
	}
	known, err := json.Marshal(s.record)
	if err != nil {
		return errors.Wrap(err, "marshaling session record")
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return errors.Wrap(err, "re-parsing session record")
	}
	for k, v := range knownMap {
		merged[k] = v
	}
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling merged session record")
	}
	path := filepath.Join(s.ws.SessionDir(s.ID), "specs.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	return os.Rename(tmp, path)
}

// BatchLogWriter opens a fresh log file under this session's
// `batches/<id>/` directory, creating the directory as needed.
func (s *Session) BatchLogWriter(batchID string) (io.WriteCloser, error) {
	dir := filepath.Join(s.ws.SessionDir(s.ID), "batches", batchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating batch log directory for %s", batchID)
	}
	return os.Create(filepath.Join(dir, "batch.log"))
}
