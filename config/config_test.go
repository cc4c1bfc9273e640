package config

import (
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const sample = `
config:
  debug: true
  log_level: info
environment:
  set:
    FOO: bar
  prepend-path:
    PATH: /opt/canary/bin
timeout:
  default: 120
  fast: 10
  gpu: 900
resource_pool:
- id: "0"
  cpus: [{id: "0", slots: 4}]
  gpus: [{id: "0", slots: 2}]
- id: "1"
  cpus: [{id: "0", slots: 4}]
  fpgas: [{id: "0", slots: 1}]
workspace:
  view: session-results
workers: 8
`

var _ = Describe("Load", func() {
	var path string

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "canary-config-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
		path = filepath.Join(dir, "canary.yaml")
		Expect(os.WriteFile(path, []byte(sample), 0o644)).To(Succeed())
	})

	It("parses every documented section", func() {
		cfg, err := Load(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Logging.Debug).To(BeTrue())
		Expect(cfg.Environment.Set["FOO"]).To(Equal("bar"))
		Expect(cfg.Environment.PrependPath["PATH"]).To(Equal("/opt/canary/bin"))
		Expect(cfg.Timeout.Default).To(Equal(120))
		Expect(cfg.Timeout.Named["gpu"]).To(Equal(900))
		Expect(cfg.Workspace.View).To(Equal("session-results"))
		Expect(cfg.Workers).To(Equal(8))
	})

	It("captures custom resource types on a node", func() {
		cfg, err := Load(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.ResourcePool).To(HaveLen(2))
		Expect(cfg.ResourcePool[1].Custom["fpgas"]).To(HaveLen(1))
		Expect(cfg.ResourcePool[1].Custom["fpgas"][0].Slots).To(Equal(1))
	})

	It("builds a resourcepool.Pool with the expected total capacity", func() {
		cfg, err := Load(path)
		Expect(err).NotTo(HaveOccurred())

		pool := cfg.Pool(logr.Discard())
		Expect(pool.Total("cpus")).To(Equal(8))
		Expect(pool.Total("gpus")).To(Equal(2))
	})

	It("returns defaults when no path is given", func() {
		cfg, err := Load("")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Workers).To(Equal(4))
		Expect(cfg.ResourcePrefix).To(Equal(DefaultResourcePrefix))
	})

	It("tolerates a missing file", func() {
		cfg, err := Load(filepath.Join(filepath.Dir(path), "missing.yaml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Workers).To(Equal(4))
	})

	It("rejects a non-positive worker count", func() {
		bad := filepath.Join(filepath.Dir(path), "bad.yaml")
		Expect(os.WriteFile(bad, []byte("workers: 0\n"), 0o644)).To(Succeed())
		_, err := Load(bad)
		Expect(err).To(HaveOccurred())
	})

	It("rejects duplicate resource_pool node ids", func() {
		bad := filepath.Join(filepath.Dir(path), "dup.yaml")
		Expect(os.WriteFile(bad, []byte("resource_pool:\n- id: \"0\"\n- id: \"0\"\n"), 0o644)).To(Succeed())
		_, err := Load(bad)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Config.TimeoutFor", func() {
	It("prefers an explicit per-spec timeout", func() {
		cfg := Default()
		Expect(cfg.TimeoutFor(45, []string{"fast"})).To(Equal(45))
	})

	It("falls back to a matching keyword timeout", func() {
		cfg := Default()
		cfg.Timeout.Named = map[string]int{"fast": 10}
		Expect(cfg.TimeoutFor(0, []string{"fast"})).To(Equal(10))
	})

	It("falls back to the configured default", func() {
		cfg := Default()
		Expect(cfg.TimeoutFor(0, nil)).To(Equal(cfg.Timeout.Default))
	})
})
