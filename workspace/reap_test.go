package workspace

import (
	"os"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	canary "github.com/sandialabs/canary/api/v1"
)

var _ = Describe("Reap", func() {
	var root string
	var ws *Workspace

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "canary-reap-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)
		ws = newWorkspace(root)
	})

	It("leaves recently-touched unfinished sessions alone", func() {
		a := sampleCase("a")
		a.Status = canary.Running
		execDir := root + "/exec-a"
		Expect(os.MkdirAll(execDir, 0o755)).To(Succeed())
		a.Dir = execDir

		_, err := Create(ws, map[string]*canary.TestCase{"a": a}, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(Reap(ws, logr.Discard(), time.Hour)).To(Succeed())
		Expect(execDir).To(BeADirectory())
	})

	It("removes non-terminal case directories for stale unfinished sessions", func() {
		a := sampleCase("a")
		a.Status = canary.Running
		execDir := root + "/exec-a"
		Expect(os.MkdirAll(execDir, 0o755)).To(Succeed())
		a.Dir = execDir

		s, err := Create(ws, map[string]*canary.TestCase{"a": a}, nil)
		Expect(err).NotTo(HaveOccurred())

		oldTime := time.Now().Add(-24 * time.Hour)
		specsPath := ws.SessionDir(s.ID) + "/specs.json"
		Expect(os.Chtimes(specsPath, oldTime, oldTime)).To(Succeed())

		Expect(Reap(ws, logr.Discard(), time.Hour)).To(Succeed())
		Expect(execDir).NotTo(BeADirectory())
	})

	It("never touches a finished session's directories", func() {
		a := sampleCase("a")
		a.Status = canary.Success
		execDir := root + "/exec-a"
		Expect(os.MkdirAll(execDir, 0o755)).To(Succeed())
		a.Dir = execDir

		s, err := Create(ws, map[string]*canary.TestCase{"a": a}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Finish()).To(Succeed())

		oldTime := time.Now().Add(-24 * time.Hour)
		specsPath := ws.SessionDir(s.ID) + "/specs.json"
		Expect(os.Chtimes(specsPath, oldTime, oldTime)).To(Succeed())

		Expect(Reap(ws, logr.Discard(), time.Hour)).To(Succeed())
		Expect(execDir).To(BeADirectory())
	})
})
