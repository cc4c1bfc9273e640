package filter

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"
)

// ResultEnv is the environment exposed to a dependency `result` predicate
// (SPEC_FULL.md §12.5): the implicit `status` variable holding the
// dependency's terminal status string.
type ResultEnv struct {
	Status string `expr:"status"`
}

// ResultExpr is a compiled `result` predicate, evaluated once a dependency
// reaches a terminal status to decide whether it satisfies the pattern.
type ResultExpr struct {
	source  string
	program *vm.Program
}

// CompileResult parses a `result` predicate. Callers substitute
// api/v1.DefaultResultExpr themselves when a dependency pattern leaves
// Result unset, so an empty source is rejected here.
func CompileResult(source string) (*ResultExpr, error) {
	if source == "" {
		return nil, errors.New("result expression must not be empty")
	}
	program, err := expr.Compile(source, expr.Env(ResultEnv{}), expr.AsBool())
	if err != nil {
		return nil, errors.Wrapf(err, "compiling result expression %q", source)
	}
	return &ResultExpr{source: source, program: program}, nil
}

// Satisfies reports whether status satisfies the compiled predicate.
func (r *ResultExpr) Satisfies(status string) (bool, error) {
	out, err := expr.Run(r.program, ResultEnv{Status: status})
	if err != nil {
		return false, errors.Wrapf(err, "evaluating result expression %q", r.source)
	}
	result, ok := out.(bool)
	if !ok {
		return false, errors.Errorf("result expression %q did not evaluate to a boolean", r.source)
	}
	return result, nil
}

// String returns the original source text.
func (r *ResultExpr) String() string { return r.source }
