package v1

import "path/filepath"

// matchName reports whether name satisfies the glob pattern. Dependency
// patterns use the same glob syntax as shell filename matching
// (path.Match/filepath.Match), which is sufficient for the name globs
// spec.md §3 describes ("name glob").
func matchName(pattern, name string) (bool, error) {
	return filepath.Match(pattern, name)
}
