package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// ContentHash computes the stable identifier for a TestSpec. It is a
// digest over exactly the fields spec.md §4.2 names as significant: name,
// parameters, sorted dependency ids, timeout, keywords and resource
// request. Two specs with identical attributes along these fields hash to
// the same ID by construction, which is what makes incremental rerun
// possible (spec.md invariant 7).
//
// The digest is built from a manually-ordered byte stream rather than
// encoding/json, because json field order for a map is unspecified across
// Go versions for some encoders and this hash must be exactly reproducible
// (spec.md §8 testable property 3).
func ContentHash(t *TestSpec) string {
	h := sha256.New()
	fmt.Fprintf(h, "name=%s\n", t.Name)

	keywords := append([]string(nil), t.Keywords...)
	sort.Strings(keywords)
	for _, k := range keywords {
		fmt.Fprintf(h, "kw=%s\n", k)
	}

	for _, k := range t.Parameters.SortedKeys() {
		fmt.Fprintf(h, "param=%s:%d:%s\n", k, t.Parameters[k].Kind, t.Parameters[k].String())
	}

	deps := append([]string(nil), t.DependencyIDs...)
	sort.Strings(deps)
	for _, d := range deps {
		fmt.Fprintf(h, "dep=%s\n", d)
	}

	fmt.Fprintf(h, "timeout=%d\n", t.TimeoutSecs)

	for _, rk := range sortedResourceKeys(t.Resources) {
		fmt.Fprintf(h, "res=%s:%d\n", rk, t.Resources[rk])
	}

	return hex.EncodeToString(h.Sum(nil))
}

func sortedResourceKeys(r ResourceRequest) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
