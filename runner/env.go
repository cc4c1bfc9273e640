package runner

import (
	"fmt"
	"sort"
	"strings"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/resourcepool"
)

// BuildEnv constructs the subprocess environment per spec.md §4.5 step 2:
// start from the inherited environment, apply the session-level
// modification, then the case-level one, substitute `%(<type>_ids)s`
// placeholders with the concrete allocation, then export
// `<prefix>_<type>_IDS` for each allocated resource type.
func BuildEnv(inherited []string, sessionMod, caseMod canary.EnvMod, alloc *resourcepool.Allocation, prefix string) []string {
	env := toMap(inherited)
	applyMod(env, sessionMod)
	applyMod(env, caseMod)

	if alloc != nil {
		for k, v := range env {
			env[k] = substituteIDs(v, alloc)
		}
		for _, typ := range alloc.Types() {
			name := strings.ToUpper(prefix) + "_" + strings.ToUpper(typ) + "_IDS"
			env[name] = strings.Join(alloc.IDsForType(typ), ",")
		}
	}

	return toSlice(env)
}

func substituteIDs(value string, alloc *resourcepool.Allocation) string {
	for _, typ := range alloc.Types() {
		placeholder := fmt.Sprintf("%%(%s_ids)s", typ)
		value = strings.ReplaceAll(value, placeholder, strings.Join(alloc.IDsForType(typ), ","))
	}
	return value
}

func applyMod(env map[string]string, mod canary.EnvMod) {
	for _, k := range mod.Unset {
		delete(env, k)
	}
	for k, v := range mod.Set {
		env[k] = v
	}
	for k, v := range mod.PrependPath {
		if existing, ok := env[k]; ok && existing != "" {
			env[k] = v + ":" + existing
		} else {
			env[k] = v
		}
	}
	for k, v := range mod.AppendPath {
		if existing, ok := env[k]; ok && existing != "" {
			env[k] = existing + ":" + v
		} else {
			env[k] = v
		}
	}
}

func toMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func toSlice(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
