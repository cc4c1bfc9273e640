// Package resourcepool implements the accounting structure for CPUs, GPUs
// and custom resource types across a set of nodes. It is modeled directly
// on the availability/capacity bookkeeping of a Kubernetes node pool
// (github.com/grpc/test-infra's controllers.PoolManager), generalized from
// "nodes in a named pool" to "typed resource instances on a node".
package resourcepool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"
)

// Instance is one addressable unit of a resource type on a node (e.g. a
// single GPU, or a block of CPU slots).
type Instance struct {
	ID    string
	Slots int
}

// Node is a member of the pool; it offers zero or more instances per
// resource type.
type Node struct {
	ID        string
	Resources map[string][]Instance
}

// Request describes what a TestCase needs in order to run.
type Request struct {
	// Counts maps resource type to the slot count required.
	Counts map[string]int
	// NodeCount, when > 0, is the minimum number of distinct nodes the
	// allocation must span.
	NodeCount int
	// AnyNode, when true, allows the allocation to span multiple nodes even
	// when a single node could satisfy it. The default policy is
	// single-node-if-possible.
	AnyNode bool
}

// Grant is one (node, resource type, instance, slots) line item of an
// Allocation.
type Grant struct {
	NodeID     string
	Type       string
	InstanceID string
	Slots      int
}

// Allocation is the concrete set of instances bound to a running TestCase.
// It is returned intact to the pool on release.
type Allocation struct {
	Grants []Grant
}

// IDsForType returns the instance IDs granted for a resource type, in
// ascending order; the runner comma-joins them to substitute into
// %(<type>_ids)s placeholders and to export as <PREFIX>_<TYPE>_IDS.
func (a Allocation) IDsForType(resourceType string) []string {
	var ids []string
	for _, g := range a.Grants {
		if g.Type == resourceType {
			ids = append(ids, g.InstanceID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Types returns the distinct resource types present in the allocation, in
// ascending order.
func (a Allocation) Types() []string {
	seen := map[string]bool{}
	for _, g := range a.Grants {
		seen[g.Type] = true
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ErrUnsatisfiable is returned by Acquire when a request exceeds the pool's
// total capacity and can never be satisfied, regardless of contention. It
// is fatal for the requesting case (spec.md §4.1).
type ErrUnsatisfiable struct {
	Reason string
}

func (e *ErrUnsatisfiable) Error() string { return "exceeds available resources: " + e.Reason }

// ErrNoFitNow is returned by Acquire when the request could in principle be
// satisfied but not immediately, due to contention from other running
// cases. The scheduler, not the pool, decides when to retry.
var ErrNoFitNow = fmt.Errorf("no fit available right now")

// Pool is the hierarchical resource accounting structure: a sequence of
// nodes, each with typed resource instances, each with an id and slot
// capacity. All mutation is serialized behind a single mutex (spec.md
// invariant 4 / §4.1 concurrency).
type Pool struct {
	mu    sync.Mutex
	nodes []*Node
	// available[nodeID][type][instanceID] is the remaining slot count.
	available map[string]map[string]map[string]int
	capacity  map[string]map[string]map[string]int
	log       logr.Logger
}

// New builds a Pool from a static list of nodes, the shape described by
// spec.md §6's resource_pool configuration.
func New(log logr.Logger, nodes []*Node) *Pool {
	p := &Pool{
		nodes:     nodes,
		available: map[string]map[string]map[string]int{},
		capacity:  map[string]map[string]map[string]int{},
		log:       log,
	}
	for _, n := range nodes {
		p.available[n.ID] = map[string]map[string]int{}
		p.capacity[n.ID] = map[string]map[string]int{}
		for typ, instances := range n.Resources {
			p.available[n.ID][typ] = map[string]int{}
			p.capacity[n.ID][typ] = map[string]int{}
			for _, inst := range instances {
				p.available[n.ID][typ][inst.ID] = inst.Slots
				p.capacity[n.ID][typ][inst.ID] = inst.Slots
			}
		}
	}
	return p
}

// Total returns the pool-wide slot capacity for a resource type, across all
// nodes and instances.
func (p *Pool) Total(resourceType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, byType := range p.capacity {
		for id, slots := range byType[resourceType] {
			_ = id
			total += slots
		}
	}
	return total
}

// NodeIDs returns the pool's node identifiers in configuration order.
func (p *Pool) NodeIDs() []string {
	ids := make([]string, len(p.nodes))
	for i, n := range p.nodes {
		ids[i] = n.ID
	}
	return ids
}
