package v1

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// DependencyPattern describes an unresolved reference from a spec to one or
// more other specs that must complete before it can run.
type DependencyPattern struct {
	// NamePattern is a glob matched against candidate spec names.
	NamePattern string `json:"namePattern"`

	// ParamExpr, when non-empty, is a filter-language boolean expression
	// evaluated against a candidate's parameters; only matches satisfying it
	// are bound.
	ParamExpr string `json:"paramExpr,omitempty"`

	// Expect, when set, is the exact number of candidates that must match.
	// A resolution that finds a different count fails. When nil, any
	// non-zero count is accepted.
	Expect *int `json:"expect,omitempty"`

	// Result is a filter-language boolean expression evaluated against the
	// implicit variable `status` once the dependency is terminal. The
	// default, when empty, is `status in ["success", "xfail", "xdiff"]`.
	Result string `json:"result,omitempty"`
}

// DefaultResultExpr is the implicit `result` predicate applied to a
// dependency pattern that does not specify one.
const DefaultResultExpr = `status in ["success", "xfail", "xdiff"]`

// ResultExprOrDefault returns the pattern's Result expression, or
// DefaultResultExpr when unset.
func (d DependencyPattern) ResultExprOrDefault() string {
	if d.Result == "" {
		return DefaultResultExpr
	}
	return d.Result
}

// WorkdirAsset is a file or directory that a case's execution directory
// should be populated with before launch.
type WorkdirAsset struct {
	Source string `json:"source"`
	// Link, when true, creates a symlink instead of copying the file.
	Link bool `json:"link,omitempty"`
}

// EnvMod describes a modification applied to the environment a case's
// subprocess inherits.
type EnvMod struct {
	Set         map[string]string `json:"set,omitempty"`
	Unset       []string          `json:"unset,omitempty"`
	PrependPath map[string]string `json:"prependPath,omitempty"`
	AppendPath  map[string]string `json:"appendPath,omitempty"`
}

// ExpectedFailure describes an xfail/xdiff transform requested by a spec.
type ExpectedFailure struct {
	// Kind is "xfail" or "xdiff".
	Kind string `json:"kind"`
	// ExitCode, when non-nil, is the single exit code that must be observed
	// for the transform to apply; any other non-zero code remains `failed`.
	ExitCode *int `json:"exitCode,omitempty"`
}

// UnresolvedSpec is a candidate test produced by a generator, before its
// dependency patterns have been bound to concrete specs.
type UnresolvedSpec struct {
	SourceFile   string            `json:"sourceFile"`
	Name         string            `json:"name"`
	Family       string            `json:"family"`
	Keywords     []string          `json:"keywords,omitempty"`
	Parameters   Params            `json:"parameters,omitempty"`
	Dependencies []DependencyPattern `json:"dependencies,omitempty"`
	TimeoutSecs  int               `json:"timeoutSeconds"`
	RuntimeSecs  float64           `json:"runtimeEstimateSeconds,omitempty"`
	Resources    ResourceRequest   `json:"resources,omitempty"`
	Assets       []WorkdirAsset    `json:"assets,omitempty"`
	Env          EnvMod            `json:"env,omitempty"`
	When         string            `json:"when,omitempty"`
	Enabled      bool              `json:"enabled"`
	Masked       bool              `json:"masked,omitempty"`
	Composite    bool              `json:"composite,omitempty"`
	Expected     *ExpectedFailure  `json:"expected,omitempty"`
	Command      []string          `json:"command"`
}

// errCycle is returned, wrapped with a concrete trace, when resolution would
// introduce a dependency cycle.
var errCycle = errors.New("dependency cycle detected")

// ParamMatcher evaluates a DependencyPattern.ParamExpr against a candidate's
// parameters. Resolve takes this as a callback rather than evaluating
// ParamExpr itself so that api/v1 does not need to import the filter
// package's predicate evaluator (filter already imports api/v1 for Env
// construction, and importing it back here would cycle); callers that
// freeze specs, such as cmd/canary's discover.go, supply one built on
// filter.Compile/filter.EnvForParams.
type ParamMatcher func(exprSrc string, params Params) (bool, error)

// Resolve binds each dependency pattern to concrete members of universe,
// producing a ResolvedSpec. Resolution is deterministic: candidates are
// sorted by name then by their sorted parameter tuple before matching, so
// repeated resolution of identical input always binds the same dependency
// IDs in the same order. matchParams evaluates each pattern's optional
// ParamExpr (§3); it may be nil as long as no pattern in u.Dependencies sets
// one.
func (u *UnresolvedSpec) Resolve(universe []*UnresolvedSpec, idOf func(*UnresolvedSpec) string, matchParams ParamMatcher) (*ResolvedSpec, error) {
	sorted := make([]*UnresolvedSpec, len(universe))
	copy(sorted, universe)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return paramTuple(sorted[i].Parameters) < paramTuple(sorted[j].Parameters)
	})

	resolved := &ResolvedSpec{UnresolvedSpec: *u, DependencyResults: map[string]string{}}
	for _, pat := range u.Dependencies {
		var matchIDs []string
		for _, cand := range sorted {
			if cand == u {
				continue
			}
			ok, err := matchName(pat.NamePattern, cand.Name)
			if err != nil {
				return nil, errors.Wrapf(err, "evaluating dependency pattern %q", pat.NamePattern)
			}
			if !ok {
				continue
			}
			if pat.ParamExpr != "" {
				if matchParams == nil {
					return nil, errors.Errorf("dependency pattern %q has a paramExpr but no parameter matcher was supplied", pat.NamePattern)
				}
				paramOK, err := matchParams(pat.ParamExpr, cand.Parameters)
				if err != nil {
					return nil, errors.Wrapf(err, "evaluating paramExpr %q", pat.ParamExpr)
				}
				if !paramOK {
					continue
				}
			}
			matchIDs = append(matchIDs, idOf(cand))
		}
		if pat.Expect != nil && len(matchIDs) != *pat.Expect {
			return nil, errors.Errorf("expected %d dependencies matching %q, found %d", *pat.Expect, pat.NamePattern, len(matchIDs))
		}
		if pat.Expect == nil && len(matchIDs) == 0 {
			return nil, errors.Errorf("dependency pattern %q matched no specs", pat.NamePattern)
		}
		resolved.DependencyIDs = append(resolved.DependencyIDs, matchIDs...)
		resolved.DependencyPatterns = append(resolved.DependencyPatterns, pat)
		for _, id := range matchIDs {
			resolved.DependencyResults[id] = pat.ResultExprOrDefault()
		}
	}
	return resolved, nil
}

func paramTuple(p Params) string {
	s := ""
	for _, k := range p.SortedKeys() {
		s += k + "=" + p[k].String() + ";"
	}
	return s
}

// ResolvedSpec is an UnresolvedSpec whose dependency patterns have been
// bound to explicit references. It is still mutable with respect to
// masking/filtering until Freeze is called.
type ResolvedSpec struct {
	UnresolvedSpec
	DependencyIDs      []string            `json:"dependencyIds,omitempty"`
	DependencyPatterns []DependencyPattern `json:"dependencyPatterns,omitempty"`
	// DependencyResults maps each bound dependency ID to the `result`
	// expression (spec.md §4.4, SPEC_FULL.md §12.5) that must hold against
	// its terminal status for this spec to become ready rather than
	// skipped.
	DependencyResults map[string]string `json:"dependencyResults,omitempty"`
	MaskReason         string              `json:"maskReason,omitempty"`
}

// IsMasked reports whether this spec has been excluded from scheduling.
func (r *ResolvedSpec) IsMasked() bool { return r.MaskReason != "" }

// Mask excludes the spec from scheduling with the given reason.
func (r *ResolvedSpec) Mask(reason string) { r.MaskReason = reason }

// Freeze produces an immutable TestSpec with a stable content-hash ID. Two
// ResolvedSpecs with identical name, parameters, sorted dependency IDs,
// timeout, keywords and resource request freeze to the same ID; this is
// intentional and supports incremental rerun (spec.md invariant 7/testable
// property 3).
func (r *ResolvedSpec) Freeze() *TestSpec {
	depIDs := append([]string(nil), r.DependencyIDs...)
	sort.Strings(depIDs)

	ts := &TestSpec{
		Name:         r.Name,
		Family:       r.Family,
		Keywords:     append([]string(nil), r.Keywords...),
		Parameters:   cloneParams(r.Parameters),
		DependencyIDs: depIDs,
		DependencyPatterns: append([]DependencyPattern(nil), r.DependencyPatterns...),
		DependencyResults: cloneStringMap(r.DependencyResults),
		TimeoutSecs:  r.TimeoutSecs,
		RuntimeSecs:  r.RuntimeSecs,
		Resources:    cloneResources(r.Resources),
		Assets:       append([]WorkdirAsset(nil), r.Assets...),
		Env:          r.Env,
		Enabled:      r.Enabled,
		MaskReason:   r.MaskReason,
		Composite:    r.Composite,
		Expected:     r.Expected,
		Command:      append([]string(nil), r.Command...),
		SourceFile:   r.SourceFile,
	}
	ts.ID = ContentHash(ts)
	return ts
}

func cloneParams(p Params) Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneResources(r ResourceRequest) ResourceRequest {
	if r == nil {
		return nil
	}
	out := make(ResourceRequest, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// TestSpec is a frozen ResolvedSpec. Every field that affects scheduling is
// final and the spec is addressable by its stable content-hash ID.
type TestSpec struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Family             string              `json:"family"`
	Keywords           []string            `json:"keywords,omitempty"`
	Parameters         Params              `json:"parameters,omitempty"`
	DependencyIDs      []string            `json:"dependencyIds,omitempty"`
	DependencyPatterns []DependencyPattern `json:"dependencyPatterns,omitempty"`
	DependencyResults  map[string]string   `json:"dependencyResults,omitempty"`
	TimeoutSecs        int                 `json:"timeoutSeconds"`
	RuntimeSecs        float64             `json:"runtimeEstimateSeconds,omitempty"`
	Resources          ResourceRequest     `json:"resources,omitempty"`
	Assets             []WorkdirAsset      `json:"assets,omitempty"`
	Env                EnvMod              `json:"env,omitempty"`
	Enabled            bool                `json:"enabled"`
	MaskReason         string              `json:"maskReason,omitempty"`
	Composite          bool                `json:"composite,omitempty"`
	Expected           *ExpectedFailure    `json:"expected,omitempty"`
	Command            []string            `json:"command"`
	SourceFile         string              `json:"sourceFile"`
}

// IsMasked reports whether this spec was excluded from scheduling.
func (t *TestSpec) IsMasked() bool { return t.MaskReason != "" }

// CaseName returns the directory-safe name used for this spec's execution
// directory: family, followed by a dot-joined list of `key=value` parameter
// assignments in sorted key order, e.g. "my_test.np=4.n=100".
func (t *TestSpec) CaseName() string {
	name := t.Family
	for _, k := range t.Parameters.SortedKeys() {
		name += fmt.Sprintf(".%s=%s", k, t.Parameters[k].String())
	}
	return name
}

// GenerateCompositeBase builds the TestSpec for a composite (analyze) base
// case, given the frozen sibling specs produced from the same source file
// and family. The base case's dependency list is exactly these siblings
// (invariant 6). The base carries no parameters of its own; the siblings'
// shared parameter as a parallel array comes from SiblingParameterArray.
func GenerateCompositeBase(sourceSpec *UnresolvedSpec, siblings []*TestSpec) *ResolvedSpec {
	ids := make([]string, len(siblings))
	for i, s := range siblings {
		ids[i] = s.ID
	}
	base := &ResolvedSpec{
		UnresolvedSpec: UnresolvedSpec{
			SourceFile:  sourceSpec.SourceFile,
			Name:        sourceSpec.Family,
			Family:      sourceSpec.Family,
			Keywords:    sourceSpec.Keywords,
			TimeoutSecs: sourceSpec.TimeoutSecs,
			Enabled:     sourceSpec.Enabled,
			Composite:   true,
			Command:     sourceSpec.Command,
		},
		DependencyIDs:     ids,
		DependencyResults: map[string]string{},
	}
	for _, sib := range siblings {
		base.DependencyPatterns = append(base.DependencyPatterns, DependencyPattern{
			NamePattern: sib.Name,
		})
		base.DependencyResults[sib.ID] = DefaultResultExpr
	}
	return base
}

// SiblingParameterArray exposes the named parameter across a set of sibling
// specs as a parallel array, in the order the siblings were supplied. It
// implements the composite base case's observation of its dependents'
// parameters (spec.md §3).
func SiblingParameterArray(siblings []*TestSpec, name string) []Param {
	out := make([]Param, 0, len(siblings))
	for _, s := range siblings {
		if v, ok := s.Parameters[name]; ok {
			out = append(out, v)
		}
	}
	return out
}
