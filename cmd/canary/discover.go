package main

import (
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/filter"
	"github.com/sandialabs/canary/graph"
)

// loadUnresolvedSpecs reads a document of already-produced UnresolvedSpecs
// from path. Generating that document (parsing `.pyt`/`.vvt`/
// `CTestTestfile.cmake`/generator YAML) is explicitly out of scope (spec.md
// §1); this is the seam where such a generator's output would be handed to
// the core.
func loadUnresolvedSpecs(path string) ([]*canary.UnresolvedSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading spec document %s", path)
	}
	var specs []*canary.UnresolvedSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, errors.Wrapf(err, "parsing spec document %s", path)
	}
	for _, s := range specs {
		if s.SourceFile == "" {
			s.SourceFile = path
		}
	}
	return specs, nil
}

// idByName resolves a dependency pattern's candidates to their declared
// name, the same provisional identifier api/v1's own tests use ahead of
// Freeze assigning the real content-hash ID.
func idByName(u *canary.UnresolvedSpec) string { return u.Name }

// matchParams evaluates a DependencyPattern.ParamExpr against a candidate's
// parameters using the same Selector/Filter predicate language as masks and
// find/rerun expressions, via filter.EnvForParams's parameters-only
// environment.
func matchParams(exprSrc string, params canary.Params) (bool, error) {
	expr, err := filter.Compile(exprSrc)
	if err != nil {
		return false, err
	}
	return expr.Eval(filter.EnvForParams(params))
}

// freezeAll resolves every spec in universe against the full universe,
// then freezes each into a TestSpec addressed by content hash. It works in
// two passes: a first pass resolving with name-based dependency IDs determines the
// dependency graph's topological order (so a composite base's pattern
// correctly observes children generated earlier in the source file); a
// second pass, without resolving again, walks that order translating each spec's dependency names
// into the already-frozen content-hash IDs of its dependencies before
// calling Freeze, so a frozen TestSpec's DependencyIDs are always other
// TestSpecs' real IDs rather than provisional names.
func freezeAll(universe []*canary.UnresolvedSpec) ([]*canary.TestSpec, error) {
	nodeIDs := make([]string, 0, len(universe))
	deps := make(map[string][]string, len(universe))
	firstPass := make(map[string]*canary.ResolvedSpec, len(universe))
	for _, u := range universe {
		resolved, err := u.Resolve(universe, idByName, matchParams)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving spec %q", u.Name)
		}
		firstPass[u.Name] = resolved
		nodeIDs = append(nodeIDs, u.Name)
		deps[u.Name] = resolved.DependencyIDs
	}

	order, err := graph.New(nodeIDs, deps).Toposort()
	if err != nil {
		return nil, err
	}

	frozenByName := make(map[string]*canary.TestSpec, len(universe))
	frozen := make([]*canary.TestSpec, 0, len(universe))
	for _, name := range order {
		resolved := firstPass[name]

		translated := make([]string, len(resolved.DependencyIDs))
		results := make(map[string]string, len(resolved.DependencyResults))
		for i, depName := range resolved.DependencyIDs {
			dep, ok := frozenByName[depName]
			if !ok {
				return nil, errors.Errorf("spec %q depends on %q, which was not frozen first (cycle?)", name, depName)
			}
			translated[i] = dep.ID
			results[dep.ID] = resolved.DependencyResults[depName]
		}
		resolved.DependencyIDs = translated
		resolved.DependencyResults = results

		ts := resolved.Freeze()
		frozenByName[name] = ts
		frozen = append(frozen, ts)
	}
	return frozen, nil
}

// buildCases materializes a TestCase per frozen spec, rooted under dir.
func buildCases(specs []*canary.TestSpec, dir string) map[string]*canary.TestCase {
	cases := make(map[string]*canary.TestCase, len(specs))
	for _, spec := range specs {
		caseDir := dir + "/" + spec.CaseName()
		cases[spec.ID] = canary.NewTestCase(spec, caseDir)
	}
	return cases
}
