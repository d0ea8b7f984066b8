// Package policy decides access to catalog routes with a CEL expression.
package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Request is what a policy expression can see.
type Request struct {
	Method        string
	Path          string
	Authenticated bool
	UserID        string
}

// Policy is a compiled boolean CEL expression.
type Policy struct {
	expression string
	program    cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("method", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("authenticated", cel.BoolType),
		cel.Variable("user_id", cel.StringType),
	)
}

// New compiles expression. It must type-check to bool.
func New(expression string) (*Policy, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("policy %q must evaluate to bool, got %s", expression, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return &Policy{expression: expression, program: program}, nil
}

// MustNew is New for expressions known at compile time.
func MustNew(expression string) *Policy {
	p, err := New(expression)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source expression.
func (p *Policy) String() string { return p.expression }

// Allow evaluates the policy. Any evaluation error denies.
func (p *Policy) Allow(req Request) (bool, error) {
	out, _, err := p.program.Eval(map[string]interface{}{
		"method":        req.Method,
		"path":          req.Path,
		"authenticated": req.Authenticated,
		"user_id":       req.UserID,
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean value")
	}
	return allowed, nil
}
