package main

import (
	"io"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/config"
	"github.com/sandialabs/canary/workspace"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written to it.
func captureStdout(fn func() error) (string, error) {
	r, w, err := os.Pipe()
	Expect(err).NotTo(HaveOccurred())
	orig := os.Stdout
	os.Stdout = w
	fnErr := fn()
	os.Stdout = orig
	w.Close()
	out, err := io.ReadAll(r)
	Expect(err).NotTo(HaveOccurred())
	return string(out), fnErr
}

func newTestSession(root string) (*workspace.Workspace, *workspace.Session) {
	log := newLogger(false)
	ws, err := workspace.New(log, root)
	Expect(err).NotTo(HaveOccurred())

	spec := &canary.TestSpec{
		ID:          "spec-1",
		Name:        "sample",
		Family:      "sample",
		TimeoutSecs: 30,
		Enabled:     true,
	}
	tc := canary.NewTestCase(spec, root+"/exec/spec-1")
	tc.Status = canary.Success
	cases := map[string]*canary.TestCase{spec.ID: tc}

	sess, err := workspace.Create(ws, cases, config.Default())
	Expect(err).NotTo(HaveOccurred())
	return ws, sess
}

var _ = Describe("query subcommands", func() {
	var root string

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "canary-cli-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)
	})

	It("describe prints the requested case as JSON", func() {
		_, sess := newTestSession(root)
		out, err := captureStdout(func() error {
			return describeCmd([]string{"-w", root, "-s", sess.ID, "spec-1"})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring(`"id": "spec-1"`))
	})

	It("describe errors on an unknown case ID", func() {
		_, sess := newTestSession(root)
		err := describeCmd([]string{"-w", root, "-s", sess.ID, "no-such-case"})
		Expect(err).To(HaveOccurred())
	})

	It("find matches cases against a filter expression", func() {
		_, sess := newTestSession(root)
		out, err := captureStdout(func() error {
			return findCmd([]string{"-w", root, "-s", sess.ID, `family == "sample"`})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("spec-1"))
	})

	It("location prints the case's execution directory", func() {
		_, sess := newTestSession(root)
		out, err := captureStdout(func() error {
			return locationCmd([]string{"-w", root, "-s", sess.ID, "spec-1"})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("session-results"))
		Expect(out).To(ContainSubstring("sample"))
	})

	It("status summarizes the session's cases", func() {
		_, sess := newTestSession(root)
		out, err := captureStdout(func() error {
			return statusCmd([]string{"-w", root, "-s", sess.ID})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring(sess.ID))
		Expect(out).To(ContainSubstring("1 success"))
	})

	It("resolves -s to the most recently created session when omitted", func() {
		_, sess := newTestSession(root)
		out, err := captureStdout(func() error {
			return statusCmd([]string{"-w", root})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring(sess.ID))
	})
})

var _ = Describe("rerunCmd and rebaselineCmd", func() {
	var root string

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "canary-cli-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)
	})

	It("creates a new session selecting only matching cases", func() {
		ws, sess := newTestSession(root)
		out, err := captureStdout(func() error {
			return rerunCmd([]string{"-w", root, "-s", sess.ID, `prev_status == "failed"`})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("created session"))

		ids, err := ws.Sessions()
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(HaveLen(2))
	})

	It("rejects a missing filter expression argument", func() {
		_, sess := newTestSession(root)
		err := rerunCmd([]string{"-w", root, "-s", sess.ID})
		Expect(err).To(HaveOccurred())
	})

	It("rebaseline fails for a case with no baseline directory configured", func() {
		_, sess := newTestSession(root)
		err := rebaselineCmd([]string{"-w", root, "-s", sess.ID, "spec-1"})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("summarize", func() {
	It("buckets cases by terminal status", func() {
		cases := map[string]*canary.TestCase{
			"a": {Spec: &canary.TestSpec{ID: "a"}, Status: canary.Success},
			"b": {Spec: &canary.TestSpec{ID: "b"}, Status: canary.Failed},
			"c": {Spec: &canary.TestSpec{ID: "c"}, Status: canary.Skipped},
		}
		Expect(summarize(cases)).To(Equal("1 success, 1 failed, 1 skipped, 0 other"))
	})
})

var _ = Describe("batch run sidecar file", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "canary-batchrunfile-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
	})

	It("round-trips through writeBatchRunFile/readBatchRunFile", func() {
		want := batchRunConfig{WorkspaceRoot: "/ws", SessionID: "sess-1", ConfigPath: "/cfg.yaml"}
		Expect(writeBatchRunFile(dir, want)).To(Succeed())

		got, err := readBatchRunFile(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(want))
	})

	It("errors when no run.json is present", func() {
		_, err := readBatchRunFile(dir)
		Expect(err).To(HaveOccurred())
	})
})
