// Package graph computes ordering and reachability over the dependency
// relationships between test specs. It operates on IDs, not pointers: the
// caller owns the arena of TestSpecs and passes in only the adjacency
// implied by TestSpec.DependencyIDs (spec.md's design note on avoiding
// pointer cycles in the scheduling core).
package graph

import "sort"

// Graph is a directed graph over string IDs. Edges point from a node to its
// dependencies: edge a->b means "a depends on b", i.e. b must complete
// before a may start.
type Graph struct {
	nodes []string
	deps  map[string][]string
}

// New builds a Graph from a set of node IDs and, for each, the IDs it
// depends on. deps entries referencing an ID not present in nodes are kept
// as-is; callers that require referential integrity should validate before
// constructing the graph.
func New(nodes []string, deps map[string][]string) *Graph {
	g := &Graph{
		nodes: append([]string(nil), nodes...),
		deps:  make(map[string][]string, len(deps)),
	}
	for id, d := range deps {
		g.deps[id] = append([]string(nil), d...)
	}
	return g
}

// Dependencies returns the IDs that id directly depends on.
func (g *Graph) Dependencies(id string) []string {
	return g.deps[id]
}

// Dependents returns the IDs that directly depend on id.
func (g *Graph) Dependents(id string) []string {
	var out []string
	for _, n := range g.nodes {
		for _, d := range g.deps[n] {
			if d == id {
				out = append(out, n)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Descendants returns every ID reachable by following dependency edges from
// id (id's transitive dependencies), not including id itself.
func (g *Graph) Descendants(id string) []string {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(cur string) {
		for _, d := range g.deps[cur] {
			if !seen[d] {
				seen[d] = true
				walk(d)
			}
		}
	}
	walk(id)
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Predecessors returns every ID that transitively depends on id (id's
// transitive dependents), not including id itself.
func (g *Graph) Predecessors(id string) []string {
	reverse := map[string][]string{}
	for _, n := range g.nodes {
		for _, d := range g.deps[n] {
			reverse[d] = append(reverse[d], n)
		}
	}
	seen := map[string]bool{}
	var walk func(string)
	walk = func(cur string) {
		for _, p := range reverse[cur] {
			if !seen[p] {
				seen[p] = true
				walk(p)
			}
		}
	}
	walk(id)
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Toposort returns the node IDs in an order where every ID appears after
// all of its dependencies. Ties are broken by ascending ID for
// determinism. It returns an error if the graph contains a cycle.
func (g *Graph) Toposort() ([]string, error) {
	if cycles := g.Cycles(); len(cycles) > 0 {
		return nil, &ErrCycle{Cycle: cycles[0]}
	}

	visited := map[string]bool{}
	var order []string
	sortedNodes := append([]string(nil), g.nodes...)
	sort.Strings(sortedNodes)

	var visit func(string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		deps := append([]string(nil), g.deps[id]...)
		sort.Strings(deps)
		for _, d := range deps {
			visit(d)
		}
		order = append(order, id)
	}
	for _, id := range sortedNodes {
		visit(id)
	}
	return order, nil
}

// Ready returns the subset of candidate IDs whose dependencies are all
// present in done, in ascending order. Only the given candidates are
// checked; the whole graph is not rescanned.
func (g *Graph) Ready(candidates []string, done map[string]bool) []string {
	var ready []string
	for _, id := range candidates {
		satisfied := true
		for _, d := range g.deps[id] {
			if !done[d] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// ErrCycle reports that the graph contains a dependency cycle.
type ErrCycle struct {
	Cycle []string
}

func (e *ErrCycle) Error() string {
	s := "canary: dependency cycle: "
	for i, id := range e.Cycle {
		if i > 0 {
			s += " -> "
		}
		s += id
	}
	return s
}
