package filter

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	canary "github.com/sandialabs/canary/api/v1"
)

var _ = Describe("Apply", func() {
	It("masks specs rejected by the expression and propagates to dependents", func() {
		a := spec("a", []string{"slow"}, 1)
		b := spec("b", []string{"fast"}, 1)
		b.DependencyIDs = []string{"a"}
		c := spec("c", []string{"fast"}, 1)
		c.DependencyIDs = []string{"b"}

		e, err := Compile(`not ("slow" in keywords)`)
		Expect(err).NotTo(HaveOccurred())

		err = Apply(e, []*canary.TestSpec{a, b, c}, "", func(string) string { return "" })
		Expect(err).NotTo(HaveOccurred())

		Expect(a.IsMasked()).To(BeTrue())
		Expect(a.MaskReason).To(Equal("excluded by filter expression"))
		Expect(b.IsMasked()).To(BeTrue())
		Expect(b.MaskReason).To(Equal(MaskReasonDependencyMasked))
		Expect(c.IsMasked()).To(BeTrue())
		Expect(c.MaskReason).To(Equal(MaskReasonDependencyMasked))
	})

	It("leaves unrelated specs untouched", func() {
		a := spec("a", []string{"slow"}, 1)
		d := spec("d", []string{"fast"}, 1)

		e, err := Compile(`not ("slow" in keywords)`)
		Expect(err).NotTo(HaveOccurred())

		err = Apply(e, []*canary.TestSpec{a, d}, "", func(string) string { return "" })
		Expect(err).NotTo(HaveOccurred())

		Expect(a.IsMasked()).To(BeTrue())
		Expect(d.IsMasked()).To(BeFalse())
	})
})
