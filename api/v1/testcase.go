package v1

import (
	"time"

	"github.com/sandialabs/canary/resourcepool"
)

// TestCase is the runtime binding of a TestSpec to an execution space (a
// workspace subdirectory). Unlike TestSpec it is mutable: status, timing
// and the acquired allocation change over its lifetime.
type TestCase struct {
	Spec *TestSpec

	// Dir is the absolute path to this case's unique execution directory.
	Dir string

	Status   Status
	Reason   string
	ExitCode *int

	StartTime time.Time
	StopTime  time.Time

	Allocation *resourcepool.Allocation

	// OutputPath is the path to the captured stdout/stderr file.
	OutputPath string

	// BaselineDir, when non-empty, is the directory `rebaseline` promotes
	// this case's results into (SPEC_FULL.md §12.3).
	BaselineDir string
}

// NewTestCase creates a TestCase bound to dir, in the Created state.
func NewTestCase(spec *TestSpec, dir string) *TestCase {
	return &TestCase{Spec: spec, Dir: dir, Status: Created}
}

// Duration returns the measured running time, valid once the case has
// reached a terminal state.
func (t *TestCase) Duration() time.Duration {
	if t.StartTime.IsZero() || t.StopTime.IsZero() {
		return 0
	}
	return t.StopTime.Sub(t.StartTime)
}

// Transition moves the case to a new status, enforcing spec.md invariant 3:
// a case may enter `running` exactly once, and no transition out of a
// terminal state is permitted.
func (t *TestCase) Transition(next Status) error {
	if t.Status.IsTerminal() {
		return &ErrTerminalTransition{From: t.Status, To: next, CaseName: t.Spec.CaseName()}
	}
	if next == Running && t.Status == Running {
		return &ErrTerminalTransition{From: t.Status, To: next, CaseName: t.Spec.CaseName()}
	}
	t.Status = next
	return nil
}

// ErrTerminalTransition reports an attempt to move a case out of a terminal
// status, or into Running a second time.
type ErrTerminalTransition struct {
	From, To Status
	CaseName string
}

func (e *ErrTerminalTransition) Error() string {
	return "canary: illegal transition for " + e.CaseName + " from " + string(e.From) + " to " + string(e.To)
}
