// Package config loads the stable configuration-file schema of spec.md §6
// (`config`, `environment`, `resource_pool`, `timeout`, `workspace`) and
// resolves it into the types the rest of Canary consumes. The
// snapshot-struct-plus-Validate shape is grounded on config/defaults.go's
// Defaults type; loading a YAML file into that shape with
// sigs.k8s.io/yaml (so the same struct tags serve both JSON and YAML) is
// the same idiom config/cmd/configure.go uses before calling Validate.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/resourcepool"
)

// DefaultResourcePrefix is the environment-variable prefix used when no
// configuration file overrides it (SPEC_FULL.md §12.4).
const DefaultResourcePrefix = "CANARY"

// Exit codes reported by `run`, configurable because spec.md §9 notes the
// exact integers vary across source versions; these defaults match the
// commonly-cited table for success/non-pass/configuration-error/abort.
const (
	DefaultExitSuccess   = 0
	DefaultExitNonPass   = 30
	DefaultExitConfigErr = 14
	DefaultExitAbort     = 32
)

// Logging holds debug/verbosity settings (`config:` section).
type Logging struct {
	Debug    bool   `json:"debug,omitempty"`
	LogLevel string `json:"log_level,omitempty"`
}

// Environment is the session-wide environment modification applied to
// every case before its own `env:` block (`environment:` section). Its
// field names follow spec.md §6's hyphenated keys rather than api/v1's
// EnvMod camelCase; SessionEnv converts between the two.
type Environment struct {
	Set         map[string]string `json:"set,omitempty"`
	Unset       []string          `json:"unset,omitempty"`
	PrependPath map[string]string `json:"prepend-path,omitempty"`
	AppendPath  map[string]string `json:"append-path,omitempty"`
}

// ResourceSpec describes one resource instance's id and slot count
// within a `resource_pool:` node entry.
type ResourceSpec struct {
	ID    string `json:"id"`
	Slots int    `json:"slots"`
}

// NodeSpec is one entry of the `resource_pool:` list. CPUs and GPUs are
// named explicitly since they're the two universally-understood types;
// Custom carries any additional resource type by name, the generalization
// SPEC_FULL.md §12.4 asks for.
type NodeSpec struct {
	ID     string                    `json:"id"`
	CPUs   []ResourceSpec            `json:"cpus,omitempty"`
	GPUs   []ResourceSpec            `json:"gpus,omitempty"`
	Custom map[string][]ResourceSpec `json:"-"`
}

// nodeSpecKnownKeys are skipped when collecting a NodeSpec's custom
// resource-type keys.
var nodeSpecKnownKeys = map[string]bool{"id": true, "cpus": true, "gpus": true}

// UnmarshalJSON captures any resource-type key beyond `id`/`cpus`/`gpus`
// into Custom, the same "delete known keys from a raw map" technique
// workspace.Load uses to preserve unknown top-level session keys.
func (n *NodeSpec) UnmarshalJSON(data []byte) error {
	type alias NodeSpec
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*n = NodeSpec(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range nodeSpecKnownKeys {
		delete(raw, key)
	}
	if len(raw) == 0 {
		return nil
	}
	n.Custom = make(map[string][]ResourceSpec, len(raw))
	for typ, v := range raw {
		var specs []ResourceSpec
		if err := json.Unmarshal(v, &specs); err != nil {
			return errors.Wrapf(err, "resource_pool node %q: custom type %q", n.ID, typ)
		}
		n.Custom[typ] = specs
	}
	return nil
}

// Timeouts holds named timeout durations in seconds (`timeout:` section);
// `default` is used when a spec declares no timeout and no more specific
// keyword matches one of its Spec.Keywords.
type Timeouts struct {
	Fast    int            `json:"fast,omitempty"`
	Long    int            `json:"long,omitempty"`
	Default int            `json:"default,omitempty"`
	Named   map[string]int `json:"-"`
}

var timeoutsKnownKeys = map[string]bool{"fast": true, "long": true, "default": true}

// UnmarshalJSON captures any `<keyword>: <duration>` entry beyond
// `fast`/`long`/`default` into Named.
func (t *Timeouts) UnmarshalJSON(data []byte) error {
	type alias Timeouts
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = Timeouts(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range timeoutsKnownKeys {
		delete(raw, key)
	}
	if len(raw) == 0 {
		return nil
	}
	t.Named = make(map[string]int, len(raw))
	for kw, v := range raw {
		var secs int
		if err := json.Unmarshal(v, &secs); err != nil {
			return errors.Wrapf(err, "timeout keyword %q", kw)
		}
		t.Named[kw] = secs
	}
	return nil
}

// WorkspaceConfig holds workspace-level settings (`workspace:` section).
type WorkspaceConfig struct {
	View string `json:"view,omitempty"`
}

// Config is the fully parsed configuration file, the Go value populated
// from the YAML document described in spec.md §6.
type Config struct {
	Logging         Logging         `json:"config,omitempty"`
	Environment     Environment     `json:"environment,omitempty"`
	ResourcePool    []NodeSpec      `json:"resource_pool,omitempty"`
	Timeout         Timeouts        `json:"timeout,omitempty"`
	Workspace       WorkspaceConfig `json:"workspace,omitempty"`
	ResourcePrefix  string          `json:"resource_prefix,omitempty"`
	Workers         int             `json:"workers,omitempty"`
	ExitCodeNonPass int             `json:"exit_code_non_pass,omitempty"`
}

// Default returns a Config with every field that must never be the zero
// value set to its default. Load starts from this and overlays the file.
func Default() *Config {
	return &Config{
		ResourcePrefix:  DefaultResourcePrefix,
		Workers:         4,
		ExitCodeNonPass: DefaultExitNonPass,
		Timeout: Timeouts{
			Fast:    60,
			Long:    3600,
			Default: 300,
		},
	}
}

// Load reads and parses the configuration file at path, overlaying it
// onto Default(). A missing file is not an error: callers that want an
// explicit "no config file found" diagnostic should stat the path
// themselves before calling Load.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate rejects configuration that would make later stages unable to
// proceed, per spec.md §7's "configuration error ... abort before any
// execution" policy.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if c.Timeout.Default <= 0 {
		return errors.New("timeout.default must be positive")
	}
	seen := map[string]bool{}
	for _, n := range c.ResourcePool {
		if n.ID == "" {
			return errors.New("resource_pool entry missing id")
		}
		if seen[n.ID] {
			return errors.Errorf("resource_pool has duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

// TimeoutFor resolves the timeout in seconds for a spec: an explicit
// per-spec timeout wins, then the first matching keyword entry in
// Timeout.Named, then Timeout.Default.
func (c *Config) TimeoutFor(specTimeoutSecs int, keywords []string) int {
	if specTimeoutSecs > 0 {
		return specTimeoutSecs
	}
	for _, kw := range keywords {
		if secs, ok := c.Timeout.Named[kw]; ok {
			return secs
		}
	}
	if c.Timeout.Default > 0 {
		return c.Timeout.Default
	}
	return 300
}

// Pool builds a resourcepool.Pool from the configuration's static node
// list.
func (c *Config) Pool(log logr.Logger) *resourcepool.Pool {
	nodes := make([]*resourcepool.Node, 0, len(c.ResourcePool))
	for _, n := range c.ResourcePool {
		node := &resourcepool.Node{ID: n.ID, Resources: map[string][]resourcepool.Instance{}}
		if len(n.CPUs) > 0 {
			node.Resources["cpus"] = toInstances(n.CPUs)
		}
		if len(n.GPUs) > 0 {
			node.Resources["gpus"] = toInstances(n.GPUs)
		}
		for typ, specs := range n.Custom {
			node.Resources[typ] = toInstances(specs)
		}
		nodes = append(nodes, node)
	}
	return resourcepool.New(log, nodes)
}

func toInstances(specs []ResourceSpec) []resourcepool.Instance {
	out := make([]resourcepool.Instance, len(specs))
	for i, s := range specs {
		out[i] = resourcepool.Instance{ID: s.ID, Slots: s.Slots}
	}
	return out
}

// SessionEnv converts the configured environment modification into the
// api/v1.EnvMod shape the runner package expects.
func (c *Config) SessionEnv() canary.EnvMod {
	return canary.EnvMod{
		Set:         c.Environment.Set,
		Unset:       c.Environment.Unset,
		PrependPath: c.Environment.PrependPath,
		AppendPath:  c.Environment.AppendPath,
	}
}

// DeadlockTimeout and RetryWait forward to the scheduler's tunables;
// kept here so cmd/canary has one place to read every numeric knob from.
func (c *Config) DeadlockTimeout() time.Duration { return 30 * time.Second }
func (c *Config) RetryWait() time.Duration       { return 200 * time.Millisecond }
