package main

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/config"
)

func caseWithDeps(id string, deps ...string) *canary.TestCase {
	return canary.NewTestCase(&canary.TestSpec{ID: id, DependencyIDs: deps}, "/tmp/"+id)
}

var _ = Describe("exitCodeFor", func() {
	cfg := &config.Config{ExitCodeNonPass: config.DefaultExitNonPass}

	It("returns success when every case passed or was skipped", func() {
		cases := map[string]*canary.TestCase{
			"a": {Spec: &canary.TestSpec{ID: "a"}, Status: canary.Success},
			"b": {Spec: &canary.TestSpec{ID: "b"}, Status: canary.Skipped},
			"c": {Spec: &canary.TestSpec{ID: "c"}, Status: canary.Xfail},
		}
		Expect(exitCodeFor(cfg, cases)).To(Equal(config.DefaultExitSuccess))
	})

	It("returns the configured non-pass code when any case failed", func() {
		cases := map[string]*canary.TestCase{
			"a": {Spec: &canary.TestSpec{ID: "a"}, Status: canary.Success},
			"b": {Spec: &canary.TestSpec{ID: "b"}, Status: canary.Failed},
		}
		Expect(exitCodeFor(cfg, cases)).To(Equal(config.DefaultExitNonPass))
	})
})

var _ = Describe("buildCaseDAG", func() {
	It("keeps only dependency edges that point at cases in the same set", func() {
		cases := map[string]*canary.TestCase{
			"a": caseWithDeps("a"),
			"b": caseWithDeps("b", "a", "outside-the-set"),
		}
		g := buildCaseDAG(cases)
		order, err := g.Toposort()
		Expect(err).NotTo(HaveOccurred())
		Expect(order).To(Equal([]string{"a", "b"}))
	})
})

var _ = Describe("casesSlice", func() {
	It("returns every case sorted by spec ID", func() {
		cases := map[string]*canary.TestCase{
			"b": caseWithDeps("b"),
			"a": caseWithDeps("a"),
			"c": caseWithDeps("c"),
		}
		out := casesSlice(cases)
		Expect(out).To(HaveLen(3))
		Expect(out[0].Spec.ID).To(Equal("a"))
		Expect(out[1].Spec.ID).To(Equal("b"))
		Expect(out[2].Spec.ID).To(Equal("c"))
	})
})

var _ = Describe("latestSession", func() {
	It("returns the explicit ID unchanged when one is given", func() {
		id, err := latestSession(nil, "explicit-id")
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("explicit-id"))
	})
})
