package runner

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/resourcepool"
)

func tempCase(root string, spec *canary.TestSpec) *canary.TestCase {
	return canary.NewTestCase(spec, filepath.Join(root, spec.Name))
}

var _ = Describe("Runner.Run", func() {
	var root string
	var r *Runner
	var pool *resourcepool.Pool

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "canary-run-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)

		r = New(logr.Discard(), canary.EnvMod{})
		r.GracePeriod = 50 * time.Millisecond
		pool = resourcepool.New(logr.Discard(), []*resourcepool.Node{
			{ID: "0", Resources: map[string][]resourcepool.Instance{"cpus": {{ID: "0", Slots: 1}}}},
		})
	})

	It("reports success for a zero-exit command", func() {
		spec := &canary.TestSpec{Name: "ok", Command: []string{"/bin/sh", "-c", "exit 0"}, TimeoutSecs: 5}
		tc := tempCase(root, spec)
		alloc, err := pool.Acquire(resourcepool.Request{Counts: map[string]int{"cpus": 1}})
		Expect(err).NotTo(HaveOccurred())

		status, err := r.Run(context.Background(), tc, pool, alloc)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(canary.Success))
		Expect(*tc.ExitCode).To(Equal(0))
	})

	It("reports failed for a non-zero exit", func() {
		spec := &canary.TestSpec{Name: "fail", Command: []string{"/bin/sh", "-c", "exit 7"}, TimeoutSecs: 5}
		tc := tempCase(root, spec)
		alloc, err := pool.Acquire(resourcepool.Request{Counts: map[string]int{"cpus": 1}})
		Expect(err).NotTo(HaveOccurred())

		status, err := r.Run(context.Background(), tc, pool, alloc)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(canary.Failed))
	})

	It("applies the xfail transform to a failing case", func() {
		code := 1
		spec := &canary.TestSpec{
			Name:        "expected-fail",
			Command:     []string{"/bin/sh", "-c", "exit 1"},
			TimeoutSecs: 5,
			Expected:    &canary.ExpectedFailure{Kind: "xfail", ExitCode: &code},
		}
		tc := tempCase(root, spec)
		alloc, err := pool.Acquire(resourcepool.Request{Counts: map[string]int{"cpus": 1}})
		Expect(err).NotTo(HaveOccurred())

		status, err := r.Run(context.Background(), tc, pool, alloc)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(canary.Xfail))
	})

	It("releases the allocation so a subsequent case can acquire it", func() {
		spec := &canary.TestSpec{Name: "first", Command: []string{"/bin/sh", "-c", "exit 0"}, TimeoutSecs: 5}
		tc := tempCase(root, spec)
		alloc, err := pool.Acquire(resourcepool.Request{Counts: map[string]int{"cpus": 1}})
		Expect(err).NotTo(HaveOccurred())
		_, err = r.Run(context.Background(), tc, pool, alloc)
		Expect(err).NotTo(HaveOccurred())

		Expect(pool.Total("cpus")).To(Equal(1))
		_, err = pool.Acquire(resourcepool.Request{Counts: map[string]int{"cpus": 1}})
		Expect(err).NotTo(HaveOccurred())
	})

	It("reports a timed-out process when it exceeds the timeout", func() {
		spec := &canary.TestSpec{Name: "slow", Command: []string{"/bin/sh", "-c", "sleep 5"}}
		tc := tempCase(root, spec)
		Expect(os.MkdirAll(tc.Dir, 0o755)).To(Succeed())

		result, err := runProcess(context.Background(), tc.Dir, spec.Command, nil, 50*time.Millisecond, r.GracePeriod)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.TimedOut).To(BeTrue())
	})

	It("marks a case cancelled when the context is cancelled while it runs", func() {
		spec := &canary.TestSpec{Name: "cancel-me", Command: []string{"/bin/sh", "-c", "sleep 5"}, TimeoutSecs: 5}
		tc := tempCase(root, spec)
		alloc, err := pool.Acquire(resourcepool.Request{Counts: map[string]int{"cpus": 1}})
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		status, err := r.Run(ctx, tc, pool, alloc)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(canary.Cancelled))
	})
})
