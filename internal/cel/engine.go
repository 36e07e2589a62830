// Package cel compiles and evaluates the boolean CEL expressions that back
// assertion requirements.
package cel

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Engine compiles assertion expressions against a fixed environment
// exposing `principal` and `resource` maps, and caches the compiled
// programs by expression text.
type Engine struct {
	env      *cel.Env
	programs sync.Map // map[string]cel.Program
}

// EvalContext carries the variables available to an assertion expression.
type EvalContext struct {
	Principal map[string]interface{}
	Resource  map[string]interface{}
}

// NewEngine creates the CEL environment for assertion requirements.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("principal", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("resource", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// Compile compiles an expression, requiring a boolean result type, and
// caches the compiled program.
func (e *Engine) Compile(expr string) (cel.Program, error) {
	if prog, ok := e.programs.Load(expr); ok {
		return prog.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation failed: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("assertion must evaluate to bool, got %v", ast.OutputType())
	}

	prog, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation failed: %w", err)
	}

	e.programs.Store(expr, prog)
	return prog, nil
}

// Evaluate runs a compiled program against the given context.
func (e *Engine) Evaluate(prog cel.Program, ctx *EvalContext) (bool, error) {
	resource := ctx.Resource
	if resource == nil {
		resource = map[string]interface{}{}
	}

	result, _, err := prog.Eval(map[string]interface{}{
		"principal": ctx.Principal,
		"resource":  resource,
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation failed: %w", err)
	}

	if b, ok := result.Value().(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("CEL expression did not return boolean")
}

// EvaluateExpression compiles and evaluates an expression in one call.
func (e *Engine) EvaluateExpression(expr string, ctx *EvalContext) (bool, error) {
	prog, err := e.Compile(expr)
	if err != nil {
		return false, err
	}
	return e.Evaluate(prog, ctx)
}

// ClearCache drops all cached programs.
func (e *Engine) ClearCache() {
	e.programs.Range(func(key, _ interface{}) bool {
		e.programs.Delete(key)
		return true
	})
}
