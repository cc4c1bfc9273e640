package filter

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	canary "github.com/sandialabs/canary/api/v1"
)

func spec(name string, keywords []string, np int64) *canary.TestSpec {
	return &canary.TestSpec{
		ID:         name,
		Name:       name,
		Keywords:   keywords,
		Parameters: canary.Params{"np": canary.NewIntParam(np)},
		Enabled:    true,
	}
}

var _ = Describe("Compile and Eval", func() {
	It("treats an empty expression as always true", func() {
		e, err := Compile("")
		Expect(err).NotTo(HaveOccurred())
		ok, err := e.Eval(Env{})
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("evaluates keyword membership", func() {
		e, err := Compile(`"fast" in keywords`)
		Expect(err).NotTo(HaveOccurred())

		ok, err := e.Eval(EnvForSpec(spec("a", []string{"fast"}, 4), "", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = e.Eval(EnvForSpec(spec("b", []string{"slow"}, 4), "", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("evaluates parameter comparisons", func() {
		e, err := Compile(`parameters.np >= 4`)
		Expect(err).NotTo(HaveOccurred())

		ok, err := e.Eval(EnvForSpec(spec("a", nil, 8), "", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = e.Eval(EnvForSpec(spec("a", nil, 2), "", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("supports and/or/not composition", func() {
		e, err := Compile(`not ("slow" in keywords) and parameters.np > 1`)
		Expect(err).NotTo(HaveOccurred())
		ok, err := e.Eval(EnvForSpec(spec("a", []string{"fast"}, 4), "", ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("rejects a malformed expression at compile time", func() {
		_, err := Compile("parameters.np >")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ResultExpr", func() {
	It("rejects an empty result expression", func() {
		_, err := CompileResult("")
		Expect(err).To(HaveOccurred())
	})

	It("evaluates the default success/xfail/xdiff predicate", func() {
		e, err := CompileResult(canary.DefaultResultExpr)
		Expect(err).NotTo(HaveOccurred())

		ok, err := e.Satisfies("success")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = e.Satisfies("failed")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})
})
