package workspace

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	canary "github.com/sandialabs/canary/api/v1"
	"github.com/sandialabs/canary/filter"
)

// Rerun creates a new session whose initial case set is restricted to the
// cases of s matching filterExpr (typically `prev_status in ["failed",
// "timeout", "diffed"]`); every other case is carried over pre-seeded with
// its prior terminal status, so the DAG's ready-set computation treats it
// as already done rather than re-running it (SPEC_FULL.md §12.2).
func Rerun(ws *Workspace, s *Session, filterExpr string, config interface{}) (*Session, error) {
	expr, err := filter.Compile(filterExpr)
	if err != nil {
		return nil, errors.Wrap(err, "compiling rerun filter")
	}

	cases := make(map[string]*canary.TestCase, len(s.Cases))
	for id, prior := range s.Cases {
		env := filter.EnvForSpec(prior.Spec, "", string(prior.Status))
		match, err := expr.Eval(env)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluating rerun filter against %s", prior.Spec.CaseName())
		}

		tc := canary.NewTestCase(prior.Spec, prior.Dir)
		if !match {
			// Pre-seed as already terminal so the scheduler never
			// dispatches it; Transition enforces this is a one-way move.
			tc.Status = prior.Status
			tc.Reason = prior.Reason
			tc.ExitCode = prior.ExitCode
		}
		cases[id] = tc
	}

	return Create(ws, cases, config)
}

// Rebaseline promotes caseID's result directory into the baseline location
// recorded on its spec (TestCase.BaselineDir), per SPEC_FULL.md §12.3. The
// core does not perform the comparison itself; it only relocates the
// directory the generator/parser will compare against next run.
func (s *Session) Rebaseline(caseID string) error {
	tc, err := s.Describe(caseID)
	if err != nil {
		return err
	}
	if tc.BaselineDir == "" {
		return errors.Errorf("workspace: case %q has no baseline directory configured", caseID)
	}
	if !tc.Status.IsTerminal() {
		return errors.Errorf("workspace: case %q has not finished running", caseID)
	}

	if err := os.RemoveAll(tc.BaselineDir); err != nil {
		return errors.Wrapf(err, "clearing existing baseline for %s", caseID)
	}
	if err := os.MkdirAll(filepath.Dir(tc.BaselineDir), 0o755); err != nil {
		return errors.Wrapf(err, "creating baseline parent for %s", caseID)
	}
	return copyTree(tc.Dir, tc.BaselineDir)
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
