package batchbackend

import (
	"context"
	"os"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sandialabs/canary/batch"
)

var _ = Describe("ShellBackend", func() {
	var root string

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "canary-shellbackend-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)
	})

	It("reports StateDone for a driver command that exits zero", func() {
		b := NewShellBackend(logr.Discard(), root, []string{"/bin/sh", "-c", "exit 0"})
		h, err := b.Submit(context.Background(), SubmitRequest{Batch: &batch.Batch{ID: "batch-0"}})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() State {
			res, err := b.Poll(context.Background(), h)
			Expect(err).NotTo(HaveOccurred())
			return res.State
		}, time.Second, 5*time.Millisecond).Should(Equal(StateDone))

		logPath, err := b.Logs(context.Background(), h)
		Expect(err).NotTo(HaveOccurred())
		Expect(logPath).To(BeARegularFile())
	})

	It("reports StateFailed for a driver command that exits non-zero", func() {
		b := NewShellBackend(logr.Discard(), root, []string{"/bin/sh", "-c", "exit 1"})
		h, err := b.Submit(context.Background(), SubmitRequest{Batch: &batch.Batch{ID: "batch-1"}})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() State {
			res, err := b.Poll(context.Background(), h)
			Expect(err).NotTo(HaveOccurred())
			return res.State
		}, time.Second, 5*time.Millisecond).Should(Equal(StateFailed))
	})

	It("cancels a long-running driver command", func() {
		b := NewShellBackend(logr.Discard(), root, []string{"/bin/sh", "-c", "sleep 5"})
		h, err := b.Submit(context.Background(), SubmitRequest{Batch: &batch.Batch{ID: "batch-2"}})
		Expect(err).NotTo(HaveOccurred())

		Expect(b.Cancel(context.Background(), h)).To(Succeed())

		res, err := b.Poll(context.Background(), h)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.State).To(Equal(StateFailed))
	})
})
