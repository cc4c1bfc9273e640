// Package batchbackend drives a DAG of batches (batch.Batch) over a
// pluggable workload-manager backend (spec.md §4.8). The backend is
// consumed through a narrow interface in the shape of
// clientset/loadtest_interface.go's LoadTestGetter: a handful of verbs
// (Submit/Poll/Cancel/Logs) that hide everything backend-specific behind a
// handle, so the driver never needs to know whether a batch is a local
// shell invocation or a slurm job.
package batchbackend

import (
	"context"
	"time"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/batch"
)

// State is the observed lifecycle state of a submitted batch, as reported
// by a Backend's Poll method.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Handle identifies a batch submission to its backend. Backends define
// their own opaque Token; Handle is what the driver threads through
// Poll/Cancel/Logs.
type Handle struct {
	BatchID string
	Token   string
}

// SubmitRequest carries everything a backend needs to launch a batch's
// nested driver.
type SubmitRequest struct {
	Batch     *batch.Batch
	Cases     []*canary.TestCase
	// NodeCount is the number of nodes the workload manager should
	// allocate for this batch (batch.Batch.NodeCount).
	NodeCount int
	// ExtraArgs are backend-specific passthrough arguments
	// (`-b option=<passthrough>`, spec.md §6).
	ExtraArgs []string
}

// PollResult is one observation of a submitted batch's progress.
type PollResult struct {
	State State
	// Reason explains a StateFailed result.
	Reason string
}

// Backend is the narrow capability set a workload manager integration
// implements. Submit must return promptly (it launches and returns a
// handle; it does not block for completion). Poll is called repeatedly by
// the driver at a configurable frequency until the batch reaches a
// terminal State.
type Backend interface {
	// Submit launches req's nested driver under this backend and returns a
	// handle for tracking it.
	Submit(ctx context.Context, req SubmitRequest) (Handle, error)
	// Poll reports the current state of a submission.
	Poll(ctx context.Context, h Handle) (PollResult, error)
	// Cancel requests early termination of a submission.
	Cancel(ctx context.Context, h Handle) error
	// Logs returns a path to the captured output of a submission.
	Logs(ctx context.Context, h Handle) (string, error)
}

// Options configures the driver's polling and concurrency behavior
// (spec.md §4.8).
type Options struct {
	// Workers caps the number of batches simultaneously submitted
	// (session.workers, default 5).
	Workers int
	// PollInterval is how often Poll is called for an in-flight batch.
	PollInterval time.Duration
	// GraceFactor bounds a batch's allowed runtime as a multiple of its
	// estimated runtime before the driver cancels it.
	GraceFactor float64
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		Workers:      5,
		PollInterval: time.Second,
		GraceFactor:  1.5,
	}
}
