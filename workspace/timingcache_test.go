package workspace

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TimingCache", func() {
	var root string
	var ws *Workspace

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "canary-timing-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)
		ws = newWorkspace(root)
	})

	It("returns ok=false for a family with no recorded observations", func() {
		cache := OpenTimingCache(ws)
		_, ok := cache.EstimateFor("unknown", "")
		Expect(ok).To(BeFalse())
	})

	It("averages durations recorded for the same family/parameter tuple", func() {
		cache := OpenTimingCache(ws)
		Expect(cache.Append(
			TimingRecord{Family: "heat", ParameterTuple: "n=4", DurationSeconds: 10},
			TimingRecord{Family: "heat", ParameterTuple: "n=4", DurationSeconds: 20},
		)).To(Succeed())

		mean, ok := cache.EstimateFor("heat", "n=4")
		Expect(ok).To(BeTrue())
		Expect(mean).To(Equal(15.0))
	})

	It("survives appends across separate TimingCache handles", func() {
		first := OpenTimingCache(ws)
		Expect(first.Append(TimingRecord{Family: "wave", DurationSeconds: 5})).To(Succeed())

		second := OpenTimingCache(ws)
		Expect(second.Append(TimingRecord{Family: "wave", DurationSeconds: 15})).To(Succeed())

		mean, ok := second.EstimateFor("wave", "")
		Expect(ok).To(BeTrue())
		Expect(mean).To(Equal(10.0))
	})

	It("tolerates a truncated trailing line", func() {
		cache := OpenTimingCache(ws)
		Expect(cache.Append(TimingRecord{Family: "heat", DurationSeconds: 10})).To(Succeed())

		path := filepath.Join(ws.CacheDir(), "timing.jsonl")
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(path, append(data, []byte(`{"family":"heat","durat`)...), 0o644)).To(Succeed())

		records, err := cache.ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
	})
})
