package filter

import (
	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/graph"
)

// MaskReasonDependencyMasked is applied to every transitive descendant of a
// spec excluded directly by a Selector/Filter expression.
const MaskReasonDependencyMasked = "dependency masked"

// Apply evaluates expr against every resolved spec's environment and masks
// the ones it rejects, then propagates the mask to their transitive
// dependents (spec.md §4.4: "if a spec is masked, all transitive
// descendants are masked"). specs must already carry their final
// DependencyIDs; platform and prevStatusOf supply the remaining implicit
// attributes the predicate may reference.
func Apply(expr *Expr, specs []*canary.TestSpec, platform string, prevStatusOf func(id string) string) error {
	byID := make(map[string]*canary.TestSpec, len(specs))
	ids := make([]string, 0, len(specs))
	deps := make(map[string][]string, len(specs))
	for _, s := range specs {
		byID[s.ID] = s
		ids = append(ids, s.ID)
		deps[s.ID] = s.DependencyIDs
	}
	g := graph.New(ids, deps)

	for _, s := range specs {
		if s.IsMasked() {
			continue
		}
		env := EnvForSpec(s, platform, prevStatusOf(s.ID))
		keep, err := expr.Eval(env)
		if err != nil {
			return err
		}
		if !keep {
			s.MaskReason = "excluded by filter expression"
		}
	}

	for _, s := range specs {
		if s.MaskReason != "excluded by filter expression" {
			continue
		}
		for _, depID := range g.Predecessors(s.ID) {
			if dep, ok := byID[depID]; ok && !dep.IsMasked() {
				dep.MaskReason = MaskReasonDependencyMasked
			}
		}
	}
	return nil
}
