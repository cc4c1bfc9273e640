package batchbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	canary "github.com/sandialabs/canary/api/v1"
)

// BatchCaseFile is the on-disk contract between Submit and a nested
// `canary batch-run` driver: the list of specs (and their execution
// directories) Submit placed in the batch's working directory before
// launching it. The nested driver reads this instead of being handed the
// case list on argv, since a batch can be arbitrarily large.
const BatchCaseFile = "cases.json"

// batchCaseEntry is one TestCase's spec and directory, the minimum a
// nested driver needs to rebuild a runnable canary.TestCase.
type batchCaseEntry struct {
	Spec *canary.TestSpec `json:"spec"`
	Dir  string            `json:"dir"`
}

// ShellBackend runs a batch's nested driver as a local subprocess under its
// own process group (spec.md's "mandatory for correctness with MPI
// launchers" process-group discipline). It is the `shell` backend named in
// spec.md §4.8; invoking os/exec directly is appropriate here because the
// backend IS the local subprocess launcher — there is no wire protocol to a
// remote workload manager to model with a library.
type ShellBackend struct {
	Log logr.Logger
	// Driver is the command used to re-invoke the nested driver, e.g.
	// {"canary", "batch-run"}. The request's ExtraArgs are appended; the
	// nested driver finds its cases in BatchCaseFile in its working
	// directory.
	Driver []string
	// Dir is the root under which per-batch working directories and log
	// files are created.
	Dir string

	mu    sync.Mutex
	procs map[string]*shellProc
}

type shellProc struct {
	cmd      *exec.Cmd
	logPath  string
	done     chan error
	exitErr  error
	finished bool
}

// NewShellBackend constructs a ShellBackend rooted at dir.
func NewShellBackend(log logr.Logger, dir string, driver []string) *ShellBackend {
	return &ShellBackend{Log: log, Driver: driver, Dir: dir, procs: map[string]*shellProc{}}
}

func (b *ShellBackend) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	batchDir := filepath.Join(b.Dir, req.Batch.ID)
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("batchbackend: creating batch dir: %w", err)
	}
	if err := writeBatchCaseFile(batchDir, req.Cases); err != nil {
		return Handle{}, err
	}

	logPath := filepath.Join(batchDir, "batch.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return Handle{}, fmt.Errorf("batchbackend: creating batch log: %w", err)
	}

	args := append(append([]string{}, b.Driver[1:]...), req.ExtraArgs...)
	cmd := exec.CommandContext(ctx, b.Driver[0], args...)
	cmd.Dir = batchDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return Handle{}, fmt.Errorf("batchbackend: starting batch %s: %w", req.Batch.ID, err)
	}

	proc := &shellProc{cmd: cmd, logPath: logPath, done: make(chan error, 1)}
	go func() {
		err := cmd.Wait()
		logFile.Close()
		proc.done <- err
	}()

	token := req.Batch.ID
	b.mu.Lock()
	b.procs[token] = proc
	b.mu.Unlock()

	return Handle{BatchID: req.Batch.ID, Token: token}, nil
}

func (b *ShellBackend) Poll(ctx context.Context, h Handle) (PollResult, error) {
	proc := b.lookup(h)
	if proc == nil {
		return PollResult{}, fmt.Errorf("batchbackend: unknown handle %s", h.Token)
	}

	b.mu.Lock()
	if proc.finished {
		b.mu.Unlock()
		return terminalResult(proc.exitErr), nil
	}
	b.mu.Unlock()

	select {
	case err := <-proc.done:
		b.mu.Lock()
		proc.finished = true
		proc.exitErr = err
		b.mu.Unlock()
		return terminalResult(err), nil
	default:
		return PollResult{State: StateRunning}, nil
	}
}

func terminalResult(err error) PollResult {
	if err != nil {
		return PollResult{State: StateFailed, Reason: err.Error()}
	}
	return PollResult{State: StateDone}
}

func (b *ShellBackend) Cancel(ctx context.Context, h Handle) error {
	proc := b.lookup(h)
	if proc == nil {
		return fmt.Errorf("batchbackend: unknown handle %s", h.Token)
	}
	if proc.cmd.Process == nil {
		return nil
	}
	_ = syscall.Kill(-proc.cmd.Process.Pid, syscall.SIGTERM)
	var exitErr error
	select {
	case exitErr = <-proc.done:
	case <-time.After(5 * time.Second):
		_ = syscall.Kill(-proc.cmd.Process.Pid, syscall.SIGKILL)
		exitErr = <-proc.done
	}
	b.mu.Lock()
	proc.finished = true
	proc.exitErr = exitErr
	b.mu.Unlock()
	return nil
}

func (b *ShellBackend) Logs(ctx context.Context, h Handle) (string, error) {
	proc := b.lookup(h)
	if proc == nil {
		return "", fmt.Errorf("batchbackend: unknown handle %s", h.Token)
	}
	return proc.logPath, nil
}

// LoadBatchCaseFile reads the cases.json a ShellBackend Submit wrote into
// the current batch's working directory, rebuilding runnable TestCases
// from it. A nested `canary batch-run` invocation calls this from its
// working directory (which Submit set to the batch directory) to recover
// its case list.
func LoadBatchCaseFile(dir string) ([]*canary.TestCase, error) {
	data, err := os.ReadFile(filepath.Join(dir, BatchCaseFile))
	if err != nil {
		return nil, fmt.Errorf("batchbackend: reading batch case file: %w", err)
	}
	var entries []batchCaseEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("batchbackend: parsing batch case file: %w", err)
	}
	cases := make([]*canary.TestCase, len(entries))
	for i, e := range entries {
		cases[i] = canary.NewTestCase(e.Spec, e.Dir)
	}
	return cases, nil
}

func writeBatchCaseFile(batchDir string, cases []*canary.TestCase) error {
	entries := make([]batchCaseEntry, len(cases))
	for i, tc := range cases {
		entries[i] = batchCaseEntry{Spec: tc.Spec, Dir: tc.Dir}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("batchbackend: marshaling batch case file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(batchDir, BatchCaseFile), data, 0o644); err != nil {
		return fmt.Errorf("batchbackend: writing batch case file: %w", err)
	}
	return nil
}

func (b *ShellBackend) lookup(h Handle) *shellProc {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.procs[h.Token]
}
