package runner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// outputFilePrefix names the captured stdout/stderr file per spec.md §4.5
// step 3: "<prefix>-out.txt" in the case directory.
const outputFilePrefix = "canary"

// processResult carries the outcome of a supervised subprocess run.
type processResult struct {
	ExitCode   int
	TimedOut   bool
	OutputPath string
	Duration   time.Duration
}

// runProcess launches command in dir with env, capturing combined
// stdout/stderr to "<outputFilePrefix>-out.txt", and enforces timeout by
// sending SIGTERM to the whole process group, waiting gracePeriod, then
// SIGKILL. It returns once the process has exited or been killed.
func runProcess(ctx context.Context, dir string, command []string, env []string, timeout, gracePeriod time.Duration) (*processResult, error) {
	if len(command) == 0 {
		return nil, errors.New("empty command")
	}

	outputPath := filepath.Join(dir, outputFilePrefix+"-out.txt")
	out, err := os.Create(outputPath)
	if err != nil {
		return nil, errors.Wrapf(err, "creating output file %s", outputPath)
	}
	defer out.Close()

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "starting subprocess")
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		timeoutCh = timer.C
		defer timer.Stop()
	}

	select {
	case err := <-done:
		return &processResult{
			ExitCode:   exitCodeOf(err),
			OutputPath: outputPath,
			Duration:   time.Since(start),
		}, nil

	case <-timeoutCh:
		terminateGroup(cmd.Process.Pid, gracePeriod, done)
		<-done
		return &processResult{
			TimedOut:   true,
			OutputPath: outputPath,
			Duration:   time.Since(start),
		}, nil

	case <-ctx.Done():
		terminateGroup(cmd.Process.Pid, gracePeriod, done)
		<-done
		return &processResult{
			OutputPath: outputPath,
			Duration:   time.Since(start),
		}, ctx.Err()
	}
}

// terminateGroup signals the process group rooted at pid with SIGTERM,
// waits up to gracePeriod for done to fire, then escalates to SIGKILL.
func terminateGroup(pid int, gracePeriod time.Duration, done <-chan error) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-done:
		return
	case <-time.After(gracePeriod):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
