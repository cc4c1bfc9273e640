// Package batch implements the Batcher (spec.md §4.7): it partitions a
// resolved case DAG into batches for submission to a workload-manager
// backend. Grouping cases by a shared resource axis and then checking
// whether they fit together is the same shape of problem
// controllers/gang.go solves when it buckets a LoadTest's driver/servers/
// clients into poolable components; this package generalizes that idiom
// from "components of one test" to "cases of an entire session".
package batch

import (
	"fmt"
	"sort"
	"time"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/graph"
)

// DefaultFlatDuration is the bin-duration used by `count:auto` under the
// `flat` layout, per spec.md §4.7 step 3.
const DefaultFlatDuration = 30 * time.Minute

// Spec describes a partition request (spec.md §4.7's grammar). Duration
// and Count are mutually exclusive; when both are zero, CountMode selects
// between "auto" (the default) and "max".
type Spec struct {
	Duration  time.Duration
	Count     int
	CountMode string // "", "auto", "max"
	Layout    string // "flat" (default) or "atomic"
	Nodes     string // "any" (default) or "same"
}

// Batch is one partition of the case DAG: a set of case IDs destined for a
// single workload-manager submission.
type Batch struct {
	ID        string
	CaseIDs   []string
	NodeCount int
}

// Partition splits cases into batches per spec. g must reflect the
// dependency edges among exactly the supplied cases.
func Partition(cases []*canary.TestCase, spec Spec, g *graph.Graph) ([]*Batch, error) {
	if spec.Duration > 0 && spec.Count > 0 {
		return nil, fmt.Errorf("batch: duration and count are mutually exclusive")
	}

	byID := make(map[string]*canary.TestCase, len(cases))
	for _, tc := range cases {
		byID[tc.Spec.ID] = tc
	}

	var batches []*Batch
	for _, group := range groupByNodes(cases, spec.Nodes) {
		sortDescRuntime(group)

		var groupBatches []*Batch
		switch {
		case spec.Duration > 0:
			groupBatches = fillByDuration(group, spec.Duration)
		case spec.Count > 0:
			groupBatches = lptBinPack(group, spec.Count)
		case spec.CountMode == "max":
			groupBatches = onePerBatch(group)
		case spec.Layout == "atomic":
			groupBatches = atomicComponents(group, g)
		default:
			groupBatches = fillByDuration(group, DefaultFlatDuration)
		}
		batches = append(batches, groupBatches...)
	}

	if spec.Layout == "atomic" {
		batches = growForAncestors(batches, g)
	}

	for _, b := range batches {
		b.NodeCount = maxNodeCount(b, byID)
	}
	assignIDs(batches)
	return batches, nil
}

func nodeCountOf(tc *canary.TestCase) int {
	if n := tc.Spec.Resources.Total(); n > 0 {
		return n
	}
	return 1
}

func maxNodeCount(b *Batch, byID map[string]*canary.TestCase) int {
	max := 1
	for _, id := range b.CaseIDs {
		if tc, ok := byID[id]; ok {
			if n := nodeCountOf(tc); n > max {
				max = n
			}
		}
	}
	return max
}

func groupByNodes(cases []*canary.TestCase, mode string) [][]*canary.TestCase {
	if mode != "same" {
		out := append([]*canary.TestCase(nil), cases...)
		return [][]*canary.TestCase{out}
	}
	buckets := map[int][]*canary.TestCase{}
	var keys []int
	for _, tc := range cases {
		k := nodeCountOf(tc)
		if _, ok := buckets[k]; !ok {
			keys = append(keys, k)
		}
		buckets[k] = append(buckets[k], tc)
	}
	sort.Ints(keys)
	groups := make([][]*canary.TestCase, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, buckets[k])
	}
	return groups
}

func sortDescRuntime(group []*canary.TestCase) {
	sort.Slice(group, func(i, j int) bool {
		a, b := group[i].Spec, group[j].Spec
		if a.RuntimeSecs != b.RuntimeSecs {
			return a.RuntimeSecs > b.RuntimeSecs
		}
		return a.Name < b.Name
	})
}

// lptBinPack distributes group across n bins using longest-processing-
// time-first: cases arrive pre-sorted by descending runtime, and each is
// assigned to the bin with the smallest running total.
func lptBinPack(group []*canary.TestCase, n int) []*Batch {
	if n < 1 {
		n = 1
	}
	bins := make([]*Batch, n)
	totals := make([]float64, n)
	for i := range bins {
		bins[i] = &Batch{}
	}
	for _, tc := range group {
		idx := 0
		for i := 1; i < n; i++ {
			if totals[i] < totals[idx] {
				idx = i
			}
		}
		bins[idx].CaseIDs = append(bins[idx].CaseIDs, tc.Spec.ID)
		totals[idx] += tc.Spec.RuntimeSecs
	}
	var out []*Batch
	for _, b := range bins {
		if len(b.CaseIDs) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// fillByDuration greedily packs group into bins, opening a new bin
// whenever the next case would push the current one over limit.
func fillByDuration(group []*canary.TestCase, limit time.Duration) []*Batch {
	var out []*Batch
	var cur *Batch
	var curTotal time.Duration

	for _, tc := range group {
		rt := time.Duration(tc.Spec.RuntimeSecs * float64(time.Second))
		if cur == nil || (len(cur.CaseIDs) > 0 && curTotal+rt > limit) {
			cur = &Batch{}
			out = append(out, cur)
			curTotal = 0
		}
		cur.CaseIDs = append(cur.CaseIDs, tc.Spec.ID)
		curTotal += rt
	}
	return out
}

func onePerBatch(group []*canary.TestCase) []*Batch {
	out := make([]*Batch, 0, len(group))
	for _, tc := range group {
		out = append(out, &Batch{CaseIDs: []string{tc.Spec.ID}})
	}
	return out
}

// atomicComponents groups group by connected component of the dependency
// graph restricted to group's membership, so every batch is already a
// self-contained sub-DAG before growForAncestors needs to do any work.
func atomicComponents(group []*canary.TestCase, g *graph.Graph) []*Batch {
	inGroup := make(map[string]bool, len(group))
	for _, tc := range group {
		inGroup[tc.Spec.ID] = true
	}
	visited := map[string]bool{}
	var out []*Batch
	for _, tc := range group {
		if visited[tc.Spec.ID] {
			continue
		}
		var component []string
		queue := []string{tc.Spec.ID}
		visited[tc.Spec.ID] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			neighbors := append(append([]string{}, g.Dependencies(cur)...), g.Dependents(cur)...)
			for _, n := range neighbors {
				if inGroup[n] && !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
		sort.Strings(component)
		out = append(out, &Batch{CaseIDs: component})
	}
	return out
}

// growForAncestors enforces the atomic-layout invariant: every case's
// dependencies live in the same batch. Batches that size-based partitioning
// split across a dependency edge are merged until the invariant holds.
func growForAncestors(batches []*Batch, g *graph.Graph) []*Batch {
	batchOf := map[string]int{}
	for i, b := range batches {
		for _, id := range b.CaseIDs {
			batchOf[id] = i
		}
	}

	for {
		merged := false
		for i := range batches {
			if merged {
				break
			}
			if batches[i] == nil {
				continue
			}
			for _, id := range batches[i].CaseIDs {
				for _, dep := range g.Dependencies(id) {
					j, ok := batchOf[dep]
					if ok && j != i && batches[j] != nil {
						mergeBatch(batches, batchOf, i, j)
						merged = true
						break
					}
				}
				if merged {
					break
				}
			}
		}
		if !merged {
			break
		}
	}

	var out []*Batch
	for _, b := range batches {
		if b != nil && len(b.CaseIDs) > 0 {
			out = append(out, b)
		}
	}
	return out
}

func mergeBatch(batches []*Batch, batchOf map[string]int, target, source int) {
	for _, id := range batches[source].CaseIDs {
		batches[target].CaseIDs = append(batches[target].CaseIDs, id)
		batchOf[id] = target
	}
	sort.Strings(batches[target].CaseIDs)
	batches[source] = nil
}

func assignIDs(batches []*Batch) {
	sort.Slice(batches, func(i, j int) bool {
		return minID(batches[i].CaseIDs) < minID(batches[j].CaseIDs)
	})
	for i, b := range batches {
		b.ID = fmt.Sprintf("batch-%d", i)
	}
}

func minID(ids []string) string {
	m := ids[0]
	for _, id := range ids[1:] {
		if id < m {
			m = id
		}
	}
	return m
}
