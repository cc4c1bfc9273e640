package graph

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// diamond: d depends on b and c, which both depend on a.
func diamond() *Graph {
	return New(
		[]string{"a", "b", "c", "d"},
		map[string][]string{
			"b": {"a"},
			"c": {"a"},
			"d": {"b", "c"},
		},
	)
}

var _ = Describe("Toposort", func() {
	It("orders every node after its dependencies", func() {
		order, err := diamond().Toposort()
		Expect(err).NotTo(HaveOccurred())

		pos := map[string]int{}
		for i, id := range order {
			pos[id] = i
		}
		Expect(pos["a"]).To(BeNumerically("<", pos["b"]))
		Expect(pos["a"]).To(BeNumerically("<", pos["c"]))
		Expect(pos["b"]).To(BeNumerically("<", pos["d"]))
		Expect(pos["c"]).To(BeNumerically("<", pos["d"]))
	})

	It("fails on a graph containing a cycle", func() {
		g := New([]string{"a", "b"}, map[string][]string{"a": {"b"}, "b": {"a"}})
		_, err := g.Toposort()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Descendants and Predecessors", func() {
	It("computes transitive dependencies for Descendants", func() {
		Expect(diamond().Descendants("d")).To(Equal([]string{"a", "b", "c"}))
		Expect(diamond().Descendants("b")).To(Equal([]string{"a"}))
		Expect(diamond().Descendants("a")).To(BeEmpty())
	})

	It("computes transitive dependents for Predecessors", func() {
		Expect(diamond().Predecessors("a")).To(Equal([]string{"b", "c", "d"}))
		Expect(diamond().Predecessors("d")).To(BeEmpty())
	})
})

var _ = Describe("Dependents", func() {
	It("returns only the direct dependents of a node", func() {
		Expect(diamond().Dependents("a")).To(Equal([]string{"b", "c"}))
		Expect(diamond().Dependents("b")).To(Equal([]string{"d"}))
	})
})

var _ = Describe("Ready", func() {
	It("includes only candidates whose dependencies are all done", func() {
		g := diamond()
		done := map[string]bool{"a": true}
		Expect(g.Ready([]string{"b", "c", "d"}, done)).To(Equal([]string{"b", "c"}))

		done["b"] = true
		done["c"] = true
		Expect(g.Ready([]string{"d"}, done)).To(Equal([]string{"d"}))
	})

	It("treats a node with no dependencies as immediately ready", func() {
		g := diamond()
		Expect(g.Ready([]string{"a"}, map[string]bool{})).To(Equal([]string{"a"}))
	})
})
