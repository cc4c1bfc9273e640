package resourcepool

import (
	"sort"
)

// Acquire attempts to satisfy req immediately. It never partially succeeds:
// either a complete Allocation is returned, or one of ErrUnsatisfiable /
// ErrNoFitNow is returned and no state is mutated (spec.md §4.1 failure
// semantics).
//
// Policy: single-node if any single node's capacity can satisfy the
// request; otherwise span the minimum number of nodes whose combined
// capacity meets it. Within a node, pack onto the fewest instances. Ties
// break by ascending instance id.
func (p *Pool) Acquire(req Request) (*Allocation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkSatisfiableLocked(req); err != nil {
		return nil, err
	}

	if !req.AnyNode && req.NodeCount <= 1 {
		if alloc := p.tryLockSingleNode(req); alloc != nil {
			return alloc, nil
		}
		// No single node fits right now. checkSatisfiableLocked already
		// confirmed the pool's total capacity covers the request, so the
		// default policy (spec.md §4.1) spans the minimum number of nodes
		// that together meet it rather than waiting indefinitely for one
		// node to free up enough slots on its own.
	}

	if alloc := p.trySpanNodes(req); alloc != nil {
		return alloc, nil
	}
	return nil, ErrNoFitNow
}

// checkSatisfiableLocked reports ErrUnsatisfiable when req can never be
// granted regardless of current contention (i.e. total pool capacity for
// some requested type is below the requested count, or more nodes are
// required than the pool has).
func (p *Pool) checkSatisfiableLocked(req Request) error {
	for typ, count := range req.Counts {
		total := 0
		for _, byType := range p.capacity {
			for _, slots := range byType[typ] {
				total += slots
			}
		}
		if count > total {
			return &ErrUnsatisfiable{Reason: "requested " + typ + " exceeds total pool capacity"}
		}
	}
	if req.NodeCount > len(p.nodes) {
		return &ErrUnsatisfiable{Reason: "requested node count exceeds pool size"}
	}
	return nil
}

// tryLockSingleNode attempts to pack the entire request onto one node,
// preferring the node that leaves the least slack (fewest instances used),
// and returns nil if no single node currently fits.
func (p *Pool) tryLockSingleNode(req Request) *Allocation {
	type candidate struct {
		nodeID string
		plan   map[string][]Grant
		slack  int
	}
	var best *candidate

	for _, n := range p.nodes {
		plan, slack, ok := p.planOnNode(n.ID, req.Counts)
		if !ok {
			continue
		}
		if best == nil || slack < best.slack {
			best = &candidate{nodeID: n.ID, plan: plan, slack: slack}
		}
	}
	if best == nil {
		return nil
	}
	return p.commit(best.plan)
}

// planOnNode computes (without mutating) a packing of counts onto a single
// node, preferring the fewest instances (greedy largest-first-fit). It
// returns ok=false if the node cannot satisfy every requested type.
func (p *Pool) planOnNode(nodeID string, counts map[string]int) (map[string][]Grant, int, bool) {
	plan := map[string][]Grant{}
	totalInstancesUsed := 0
	for typ, need := range counts {
		instances := p.available[nodeID][typ]
		if instances == nil {
			return nil, 0, false
		}
		ids := make([]string, 0, len(instances))
		for id := range instances {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			if instances[ids[i]] != instances[ids[j]] {
				return instances[ids[i]] > instances[ids[j]]
			}
			return ids[i] < ids[j]
		})

		remaining := need
		var grants []Grant
		for _, id := range ids {
			if remaining <= 0 {
				break
			}
			avail := instances[id]
			if avail <= 0 {
				continue
			}
			take := avail
			if take > remaining {
				take = remaining
			}
			grants = append(grants, Grant{NodeID: nodeID, Type: typ, InstanceID: id, Slots: take})
			remaining -= take
			totalInstancesUsed++
		}
		if remaining > 0 {
			return nil, 0, false
		}
		plan[typ] = grants
	}
	return plan, totalInstancesUsed, true
}

// trySpanNodes attempts to satisfy a multi-node request by greedily
// taking nodes in descending order of free slots for the requested types
// (ties by ascending id) until their combined capacity meets the request;
// for a request of a single resource type this spans the fewest nodes
// possible, and with several types the order is a heuristic. Acquire calls this both when the
// caller explicitly allows spanning (AnyNode, or NodeCount > 1) and as the
// default fallback when no single node can satisfy the request on its own.
func (p *Pool) trySpanNodes(req Request) *Allocation {
	needed := req.NodeCount
	if needed < 1 {
		needed = 1
	}

	ids := make([]string, len(p.nodes))
	free := make(map[string]int, len(p.nodes))
	for i, n := range p.nodes {
		ids[i] = n.ID
		for typ := range req.Counts {
			for _, slots := range p.available[n.ID][typ] {
				free[n.ID] += slots
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if free[ids[i]] != free[ids[j]] {
			return free[ids[i]] > free[ids[j]]
		}
		return ids[i] < ids[j]
	})

	remaining := map[string]int{}
	for typ, c := range req.Counts {
		remaining[typ] = c
	}

	plan := map[string][]Grant{}
	nodesUsed := 0
	for _, nodeID := range ids {
		if nodesUsed >= needed && allSatisfied(remaining) {
			break
		}
		sub := map[string]int{}
		any := false
		for typ, need := range remaining {
			if need <= 0 {
				continue
			}
			sub[typ] = need
			any = true
		}
		if !any {
			continue
		}
		nodePlan, _, ok := p.planOnNode(nodeID, sub)
		if !ok {
			// take whatever the node can offer, partial per type
			nodePlan = p.planPartialOnNode(nodeID, sub)
		}
		if len(nodePlan) == 0 {
			continue
		}
		for typ, grants := range nodePlan {
			plan[typ] = append(plan[typ], grants...)
			got := 0
			for _, g := range grants {
				got += g.Slots
			}
			remaining[typ] -= got
		}
		nodesUsed++
	}

	if !allSatisfied(remaining) || nodesUsed < needed {
		return nil
	}
	return p.commit(plan)
}

func allSatisfied(remaining map[string]int) bool {
	for _, v := range remaining {
		if v > 0 {
			return false
		}
	}
	return true
}

// planPartialOnNode packs as much of counts as a node can offer, returning
// whatever subset it can grant (possibly all of it, possibly none).
func (p *Pool) planPartialOnNode(nodeID string, counts map[string]int) map[string][]Grant {
	plan := map[string][]Grant{}
	for typ, need := range counts {
		instances := p.available[nodeID][typ]
		ids := make([]string, 0, len(instances))
		for id := range instances {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		remaining := need
		var grants []Grant
		for _, id := range ids {
			if remaining <= 0 {
				break
			}
			avail := instances[id]
			if avail <= 0 {
				continue
			}
			take := avail
			if take > remaining {
				take = remaining
			}
			grants = append(grants, Grant{NodeID: nodeID, Type: typ, InstanceID: id, Slots: take})
			remaining -= take
		}
		if len(grants) > 0 {
			plan[typ] = grants
		}
	}
	return plan
}

// commit deducts plan from availability and returns the Allocation. The
// caller must hold p.mu.
func (p *Pool) commit(plan map[string][]Grant) *Allocation {
	alloc := &Allocation{}
	for typ, grants := range plan {
		for _, g := range grants {
			p.available[g.NodeID][typ][g.InstanceID] -= g.Slots
			alloc.Grants = append(alloc.Grants, g)
		}
	}
	return alloc
}

// Release returns an allocation's grants to the pool. A grant naming an
// unknown node or resource type, or one that would raise an instance above
// its capacity, is a programming error and panics, per spec.md §4.1's
// "fatal" failure semantics. A repeated release of the same allocation
// panics only when it would raise an instance above its capacity;
// otherwise its slots are added back to availability a second time.
func (p *Pool) Release(alloc *Allocation) {
	if alloc == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range alloc.Grants {
		byType, ok := p.available[g.NodeID]
		if !ok {
			panic("resourcepool: release of allocation on unknown node " + g.NodeID)
		}
		instances, ok := byType[g.Type]
		if !ok {
			panic("resourcepool: release of allocation for unknown type " + g.Type)
		}
		cap := p.capacity[g.NodeID][g.Type][g.InstanceID]
		newVal := instances[g.InstanceID] + g.Slots
		if newVal > cap {
			panic("resourcepool: release would exceed instance capacity for " + g.InstanceID)
		}
		instances[g.InstanceID] = newVal
	}
}

// Snapshot returns a point-in-time view of availability. It is not
// suitable for making
// allocation decisions (those require the lock held across the decision).
func (p *Pool) Snapshot() map[string]map[string]map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]map[string]map[string]int{}
	for nodeID, byType := range p.available {
		out[nodeID] = map[string]map[string]int{}
		for typ, instances := range byType {
			out[nodeID][typ] = map[string]int{}
			for id, slots := range instances {
				out[nodeID][typ][id] = slots
			}
		}
	}
	return out
}
