package runner

import (
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	canary "github.com/sandialabs/canary/api/v1"
)

var _ = Describe("PopulateDir", func() {
	var root string

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "canary-runner-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, root)
	})

	It("creates the execution directory and writes case metadata", func() {
		spec := &canary.TestSpec{
			Name:          "diffusion",
			Family:        "diffusion",
			Parameters:    canary.Params{"np": canary.NewIntParam(4)},
			DependencyIDs: []string{"dep-1"},
		}
		tc := canary.NewTestCase(spec, filepath.Join(root, "diffusion.np=4"))

		Expect(PopulateDir(tc)).To(Succeed())

		data, err := os.ReadFile(filepath.Join(tc.Dir, metadataFileName))
		Expect(err).NotTo(HaveOccurred())

		var meta caseMetadata
		Expect(json.Unmarshal(data, &meta)).To(Succeed())
		Expect(meta.Family).To(Equal("diffusion"))
		Expect(meta.DependencyIDs).To(Equal([]string{"dep-1"}))
		Expect(meta.Parameters["np"]).To(BeEquivalentTo(4))
	})

	It("copies a declared asset into the execution directory", func() {
		srcDir, err := os.MkdirTemp("", "canary-asset-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, srcDir)

		assetPath := filepath.Join(srcDir, "input.dat")
		Expect(os.WriteFile(assetPath, []byte("data"), 0o644)).To(Succeed())

		spec := &canary.TestSpec{
			Name:   "copytest",
			Assets: []canary.WorkdirAsset{{Source: assetPath}},
		}
		tc := canary.NewTestCase(spec, filepath.Join(root, "copytest"))

		Expect(PopulateDir(tc)).To(Succeed())

		content, err := os.ReadFile(filepath.Join(tc.Dir, "input.dat"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("data"))
	})

	It("symlinks an asset marked Link", func() {
		srcDir, err := os.MkdirTemp("", "canary-asset-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, srcDir)

		assetPath := filepath.Join(srcDir, "shared.dat")
		Expect(os.WriteFile(assetPath, []byte("shared"), 0o644)).To(Succeed())

		spec := &canary.TestSpec{
			Name:   "linktest",
			Assets: []canary.WorkdirAsset{{Source: assetPath, Link: true}},
		}
		tc := canary.NewTestCase(spec, filepath.Join(root, "linktest"))

		Expect(PopulateDir(tc)).To(Succeed())

		linkDest := filepath.Join(tc.Dir, "shared.dat")
		target, err := os.Readlink(linkDest)
		Expect(err).NotTo(HaveOccurred())
		Expect(target).To(Equal(assetPath))
	})
})
