package sheetops

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// legacyEvaluator runs old-format string formulas through expr-lang. Column
// names and variables are exposed as identifiers in the environment, so
// `Price * 0.9` reads the row's Price cell. Programs are compiled once and
// cached across rows.
type legacyEvaluator struct {
	cache sync.Map // formula string → compiled *vm.Program
}

func newLegacyEvaluator() *legacyEvaluator {
	return &legacyEvaluator{}
}

// Evaluate runs one string formula against the given environment and maps
// the result back into the value domain.
func (e *legacyEvaluator) Evaluate(formula string, env map[string]any) (Value, error) {
	if formula == "" {
		return nil, nil
	}
	program, err := e.compile(formula, env)
	if err != nil {
		return nil, fmt.Errorf("compile formula %q: %w", formula, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate formula %q: %w", formula, err)
	}
	return FromAny(result)
}

func (e *legacyEvaluator) compile(formula string, env map[string]any) (*vm.Program, error) {
	if cached, ok := e.cache.Load(formula); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(formula, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	e.cache.Store(formula, program)
	return program, nil
}

// checkLegacyFormula compiles a string formula without running it, rejecting
// syntax errors at parse time.
func checkLegacyFormula(formula string) error {
	_, err := expr.Compile(formula, expr.AllowUndefinedVariables())
	return err
}

// legacyEnv builds an expr-lang environment from a row context and the
// variable context. Variables shadow columns of the same name.
func legacyEnv(rowCtx, vars map[string]Value) map[string]any {
	env := make(map[string]any, len(rowCtx)+len(vars))
	for name, v := range rowCtx {
		env[name] = ToAny(v)
	}
	for name, v := range vars {
		env[name] = ToAny(v)
	}
	return env
}
