package workspace

import (
	"path/filepath"

	"github.com/pkg/errors"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/filter"
)

// Describe returns the case identified by caseID, or an error if it is not
// part of this session (SPEC_FULL.md §12.1).
func (s *Session) Describe(caseID string) (*canary.TestCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc, ok := s.Cases[caseID]
	if !ok {
		return nil, errors.Errorf("workspace: no such case %q in session %s", caseID, s.ID)
	}
	return tc, nil
}

// Find returns every case in this session matching filterExpr, evaluated
// with the same predicate language masks/filters use (SPEC_FULL.md §12.1,
// §4.4).
func (s *Session) Find(filterExpr string) ([]*canary.TestCase, error) {
	expr, err := filter.Compile(filterExpr)
	if err != nil {
		return nil, errors.Wrap(err, "compiling find expression")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*canary.TestCase
	for _, tc := range s.Cases {
		env := filter.EnvForSpec(tc.Spec, "", string(tc.Status))
		ok, err := expr.Eval(env)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluating find expression against %s", tc.Spec.CaseName())
		}
		if ok {
			out = append(out, tc)
		}
	}
	return out, nil
}

// Location returns the view path exposing caseID's execution directory
// (SPEC_FULL.md §12.1).
func (s *Session) Location(caseID string) (string, error) {
	tc, err := s.Describe(caseID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.ws.ViewDir(), relpathFor(tc.Spec), tc.Spec.CaseName()), nil
}
