package graph

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Cycles", func() {
	It("reports no cycles for an acyclic graph", func() {
		Expect(diamond().Cycles()).To(BeEmpty())
	})

	It("finds a direct two-node cycle", func() {
		g := New([]string{"a", "b"}, map[string][]string{"a": {"b"}, "b": {"a"}})
		cycles := g.Cycles()
		Expect(cycles).To(HaveLen(1))
		Expect(cycles[0]).To(ConsistOf("a", "b"))
	})

	It("finds a longer cycle embedded in a larger graph", func() {
		g := New(
			[]string{"a", "b", "c", "d", "e"},
			map[string][]string{
				"a": {"b"},
				"b": {"c"},
				"c": {"a"},
				"d": {"a"},
				"e": {"d"},
			},
		)
		cycles := g.Cycles()
		Expect(cycles).To(HaveLen(1))
		Expect(cycles[0]).To(ConsistOf("a", "b", "c"))
	})

	It("detects a self-dependency as a cycle", func() {
		g := New([]string{"a"}, map[string][]string{"a": {"a"}})
		cycles := g.Cycles()
		Expect(cycles).To(HaveLen(1))
		Expect(cycles[0]).To(ConsistOf("a"))
	})
})

var _ = Describe("ErrCycle", func() {
	It("renders a readable trace", func() {
		err := &ErrCycle{Cycle: []string{"a", "b", "c"}}
		Expect(err.Error()).To(ContainSubstring("a -> b -> c"))
	})
})
