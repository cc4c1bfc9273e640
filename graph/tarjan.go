package graph

import "sort"

// tarjanState carries the working registers of Tarjan's algorithm across
// the recursive visit calls.
type tarjanState struct {
	index   int
	indices map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	sccs    [][]string
}

// Cycles returns every strongly connected component of size greater than
// one, plus any single node with a self-dependency. A graph free of
// dependency cycles returns nil. This is run once, at freeze time, per
// spec.md §4.3 — the scheduler itself never needs to re-detect cycles
// since TestSpecs are immutable once frozen.
func (g *Graph) Cycles() [][]string {
	st := &tarjanState{
		indices: make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
	}

	sortedNodes := append([]string(nil), g.nodes...)
	sort.Strings(sortedNodes)

	for _, id := range sortedNodes {
		if _, ok := st.indices[id]; !ok {
			g.strongConnect(id, st)
		}
	}

	var cycles [][]string
	for _, scc := range st.sccs {
		if len(scc) > 1 {
			cycles = append(cycles, scc)
			continue
		}
		// A single-node component is only a cycle if it depends on itself.
		id := scc[0]
		for _, d := range g.deps[id] {
			if d == id {
				cycles = append(cycles, scc)
				break
			}
		}
	}
	return cycles
}

func (g *Graph) strongConnect(v string, st *tarjanState) {
	st.indices[v] = st.index
	st.lowlink[v] = st.index
	st.index++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	deps := append([]string(nil), g.deps[v]...)
	sort.Strings(deps)
	for _, w := range deps {
		if _, ok := st.indices[w]; !ok {
			g.strongConnect(w, st)
			if st.lowlink[w] < st.lowlink[v] {
				st.lowlink[v] = st.lowlink[w]
			}
		} else if st.onStack[w] {
			if st.indices[w] < st.lowlink[v] {
				st.lowlink[v] = st.indices[w]
			}
		}
	}

	if st.lowlink[v] == st.indices[v] {
		var component []string
		for {
			n := len(st.stack) - 1
			w := st.stack[n]
			st.stack = st.stack[:n]
			st.onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		sort.Strings(component)
		st.sccs = append(st.sccs, component)
	}
}
