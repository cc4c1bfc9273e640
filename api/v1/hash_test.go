package v1

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ContentHash", func() {
	base := func() *TestSpec {
		return &TestSpec{
			Name:          "diffusion",
			Keywords:      []string{"fast"},
			Parameters:    Params{"np": NewIntParam(4)},
			DependencyIDs: []string{"b", "a"},
			TimeoutSecs:   30,
			Resources:     ResourceRequest{"cpus": 4},
		}
	}

	It("is deterministic across repeated calls on identical input", func() {
		a := ContentHash(base())
		b := ContentHash(base())
		Expect(a).To(Equal(b))
	})

	It("is insensitive to dependency ID order", func() {
		s1 := base()
		s2 := base()
		s2.DependencyIDs = []string{"a", "b"}
		Expect(ContentHash(s1)).To(Equal(ContentHash(s2)))
	})

	It("changes when a significant field changes", func() {
		s1 := base()
		s2 := base()
		s2.TimeoutSecs = 60
		Expect(ContentHash(s1)).NotTo(Equal(ContentHash(s2)))
	})

	It("is insensitive to fields that do not affect scheduling", func() {
		s1 := base()
		s2 := base()
		s2.SourceFile = "/different/path.pyt"
		Expect(ContentHash(s1)).To(Equal(ContentHash(s2)))
	})
})
