// Package filter implements the Selector/Filter predicate language applied
// to specs before scheduling (spec.md §4.4) and the dependency `result`
// mini-language (SPEC_FULL.md §12.5). Both compile a boolean expression
// against a small environment and evaluate it once per spec, the same
// shape of problem ormasoftchile-gert's runbook engine solves for its step
// conditions, so this package reuses its library and compile/run idiom.
package filter

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"

	canary "github.com/sandialabs/canary/api/v1"
)

// Env is the evaluation environment exposed to a Selector/Filter
// expression: one set of bindings per candidate spec, per spec.md §4.4's
// list of implicit attributes.
type Env struct {
	Name       string                 `expr:"name"`
	Family     string                 `expr:"family"`
	Keywords   []string               `expr:"keywords"`
	Parameters map[string]interface{} `expr:"parameters"`
	Runtime    float64                `expr:"runtime"`
	Timeout    int                    `expr:"timeout"`
	Platform   string                 `expr:"platform"`
	Enabled    bool                   `expr:"enabled"`
	PrevStatus string                 `expr:"prev_status"`
}

// EnvForSpec builds the evaluation environment for a spec. platform is the
// host platform expression (e.g. "linux-x86_64") and prevStatus is the
// cached status from a previous session, used by rerun filtering; it is
// empty when there is none.
func EnvForSpec(ts *canary.TestSpec, platform, prevStatus string) Env {
	return Env{
		Name:       ts.Name,
		Family:     ts.Family,
		Keywords:   ts.Keywords,
		Parameters: nativeParams(ts.Parameters),
		Runtime:    ts.RuntimeSecs,
		Timeout:    ts.TimeoutSecs,
		Platform:   platform,
		Enabled:    ts.Enabled,
		PrevStatus: prevStatus,
	}
}

// EnvForParams builds an evaluation environment exposing only `parameters`,
// for evaluating a DependencyPattern.ParamExpr against a dependency
// candidate ahead of resolution, before the rest of a spec's fields (name,
// family, ...) are relevant to the match.
func EnvForParams(params canary.Params) Env {
	return Env{Parameters: nativeParams(params)}
}

func nativeParams(params canary.Params) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v.Native()
	}
	return out
}

// Expr is a compiled Selector/Filter predicate.
type Expr struct {
	source  string
	program *vm.Program
}

// Compile parses and type-checks a predicate expression. An empty source
// compiles to an expression that always evaluates true.
func Compile(source string) (*Expr, error) {
	if source == "" {
		return &Expr{source: source}, nil
	}
	program, err := expr.Compile(source, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, errors.Wrapf(err, "compiling filter expression %q", source)
	}
	return &Expr{source: source, program: program}, nil
}

// Eval runs the compiled predicate against env.
func (e *Expr) Eval(env Env) (bool, error) {
	if e.program == nil {
		return true, nil
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		return false, errors.Wrapf(err, "evaluating filter expression %q", e.source)
	}
	result, ok := out.(bool)
	if !ok {
		return false, errors.Errorf("filter expression %q did not evaluate to a boolean", e.source)
	}
	return result, nil
}

// String returns the original source text.
func (e *Expr) String() string { return e.source }
