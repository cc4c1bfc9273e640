package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	canary "github.com/sandialabs/canary/api/v1"
)

// RefreshView updates ws's view directory so each of s's cases is exposed
// at `<session-results>/<relpath>/<case_name>` (spec.md §4.9), replacing
// any existing symlink at that path. Only cases with a non-empty Dir are
// linked; a failing link for one case does not abort the others.
func RefreshView(ws *Workspace, s *Session) error {
	var firstErr error
	for _, tc := range s.Cases {
		if tc.Dir == "" {
			continue
		}
		link := filepath.Join(ws.ViewDir(), relpathFor(tc.Spec), tc.Spec.CaseName())
		if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "creating view directory for %s", tc.Spec.CaseName())
			}
			continue
		}
		_ = os.Remove(link)
		if err := os.Symlink(tc.Dir, link); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "linking view entry for %s", tc.Spec.CaseName())
			}
		}
	}
	return firstErr
}

// relpathFor derives the view subdirectory for a spec from its source
// file's directory, so cases from the same test source land next to each
// other in the view.
func relpathFor(spec *canary.TestSpec) string {
	dir := filepath.Dir(spec.SourceFile)
	dir = strings.TrimPrefix(dir, string(filepath.Separator))
	if dir == "." || dir == "" {
		return ""
	}
	return dir
}

// MergeRerun updates dst's cases with src's cases (the re-executed
// subset), per spec.md §4.9's "merge only the statuses of the
// re-executed cases into the view."
func MergeRerun(dst, src *Session) {
	for id, tc := range src.Cases {
		dst.Cases[id] = tc
	}
}
