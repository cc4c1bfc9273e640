package batch

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/graph"
)

func caseWithRuntime(id string, runtime float64, deps ...string) *canary.TestCase {
	spec := &canary.TestSpec{ID: id, Name: id, RuntimeSecs: runtime, DependencyIDs: deps}
	return canary.NewTestCase(spec, "/tmp/"+id)
}

func graphFor(cases []*canary.TestCase) *graph.Graph {
	ids := make([]string, len(cases))
	deps := map[string][]string{}
	for i, tc := range cases {
		ids[i] = tc.Spec.ID
		deps[tc.Spec.ID] = tc.Spec.DependencyIDs
	}
	return graph.New(ids, deps)
}

var _ = Describe("Partition", func() {
	It("rejects a spec that sets both duration and count", func() {
		_, err := Partition(nil, Spec{Duration: time.Minute, Count: 2}, graph.New(nil, nil))
		Expect(err).To(HaveOccurred())
	})

	It("distributes cases across N bins with count:N using LPT", func() {
		cases := []*canary.TestCase{
			caseWithRuntime("a", 100),
			caseWithRuntime("b", 90),
			caseWithRuntime("c", 10),
			caseWithRuntime("d", 5),
		}
		batches, err := Partition(cases, Spec{Count: 2}, graphFor(cases))
		Expect(err).NotTo(HaveOccurred())
		Expect(batches).To(HaveLen(2))

		total := 0
		for _, b := range batches {
			total += len(b.CaseIDs)
		}
		Expect(total).To(Equal(4))
	})

	It("places one case per batch under count:max", func() {
		cases := []*canary.TestCase{caseWithRuntime("a", 1), caseWithRuntime("b", 1)}
		batches, err := Partition(cases, Spec{CountMode: "max"}, graphFor(cases))
		Expect(err).NotTo(HaveOccurred())
		Expect(batches).To(HaveLen(2))
		for _, b := range batches {
			Expect(b.CaseIDs).To(HaveLen(1))
		}
	})

	It("fills bins up to the duration limit", func() {
		cases := []*canary.TestCase{
			caseWithRuntime("a", 720),
			caseWithRuntime("b", 720),
			caseWithRuntime("c", 720),
			caseWithRuntime("d", 720),
		}
		batches, err := Partition(cases, Spec{Duration: 30 * time.Minute}, graphFor(cases))
		Expect(err).NotTo(HaveOccurred())
		Expect(batches).To(HaveLen(2))
		Expect(batches[0].CaseIDs).To(HaveLen(2))
		Expect(batches[1].CaseIDs).To(HaveLen(2))
	})

	It("puts every case in exactly one batch", func() {
		cases := []*canary.TestCase{
			caseWithRuntime("a", 50),
			caseWithRuntime("b", 30),
			caseWithRuntime("c", 10),
		}
		batches, err := Partition(cases, Spec{Count: 2}, graphFor(cases))
		Expect(err).NotTo(HaveOccurred())

		seen := map[string]bool{}
		for _, b := range batches {
			for _, id := range b.CaseIDs {
				Expect(seen[id]).To(BeFalse())
				seen[id] = true
			}
		}
		Expect(seen).To(HaveLen(3))
	})

	Context("atomic layout", func() {
		It("keeps a case and its dependency in the same batch", func() {
			cases := []*canary.TestCase{
				caseWithRuntime("a", 500),
				caseWithRuntime("b", 500, "a"),
				caseWithRuntime("c", 10),
			}
			batches, err := Partition(cases, Spec{Layout: "atomic", Count: 2}, graphFor(cases))
			Expect(err).NotTo(HaveOccurred())

			batchOf := map[string]string{}
			for _, b := range batches {
				for _, id := range b.CaseIDs {
					batchOf[id] = b.ID
				}
			}
			Expect(batchOf["a"]).To(Equal(batchOf["b"]))
		})
	})
})
