package condition

import (
	"fmt"
	"strings"

	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/flow"
	"github.com/vyrodovalexey/flowgate/internal/router"
)

// Evaluator decides whether a flow applies to the request of ctx.
type Evaluator interface {
	Evaluate(ctx *execution.Context) (bool, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx *execution.Context) (bool, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx *execution.Context) (bool, error) {
	return f(ctx)
}

// PathEvaluator matches the request path against a compiled pattern.
type PathEvaluator struct {
	pattern  *router.Pattern
	operator flow.Operator
}

// NewPathEvaluator creates a path evaluator.
func NewPathEvaluator(pattern *router.Pattern, operator flow.Operator) *PathEvaluator {
	return &PathEvaluator{pattern: pattern, operator: operator}
}

// Evaluate reports whether the request path matches.
func (e *PathEvaluator) Evaluate(ctx *execution.Context) (bool, error) {
	return e.pattern.Match(e.operator, router.SplitPath(ctx.Request().Path)), nil
}

// Pattern returns the compiled pattern.
func (e *PathEvaluator) Pattern() *router.Pattern {
	return e.pattern
}

// MethodEvaluator matches the request method.
type MethodEvaluator struct {
	matcher *router.MethodMatcher
}

// NewMethodEvaluator creates a method evaluator for methods.
func NewMethodEvaluator(methods []string) *MethodEvaluator {
	return &MethodEvaluator{matcher: router.NewMethodMatcher(methods)}
}

// Evaluate reports whether the request method is allowed.
func (e *MethodEvaluator) Evaluate(ctx *execution.Context) (bool, error) {
	return e.matcher.Match(ctx.Request().Method), nil
}

// ExpressionEvaluator evaluates a boolean expression through the
// evaluator of the execution context.
type ExpressionEvaluator struct {
	expression string
}

// NewExpressionEvaluator creates an expression evaluator.
func NewExpressionEvaluator(expression string) *ExpressionEvaluator {
	return &ExpressionEvaluator{expression: expression}
}

// Evaluate evaluates the expression.
func (e *ExpressionEvaluator) Evaluate(ctx *execution.Context) (bool, error) {
	return ctx.EvaluateCondition(e.expression)
}

// Expression returns the expression.
func (e *ExpressionEvaluator) Expression() string {
	return e.expression
}

// Composite runs evaluators in order and stops at the first false.
type Composite struct {
	evaluators []Evaluator
}

// NewComposite creates a composite of evaluators. Nil entries are dropped.
func NewComposite(evaluators ...Evaluator) *Composite {
	c := &Composite{evaluators: make([]Evaluator, 0, len(evaluators))}
	for _, e := range evaluators {
		if e != nil {
			c.evaluators = append(c.evaluators, e)
		}
	}
	return c
}

// Evaluate returns true when every evaluator returns true. An empty
// composite returns true.
func (c *Composite) Evaluate(ctx *execution.Context) (bool, error) {
	for _, e := range c.evaluators {
		ok, err := e.Evaluate(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Len returns the number of evaluators.
func (c *Composite) Len() int {
	return len(c.evaluators)
}

// ForFlow builds the default evaluator of f: path, then method when f
// restricts methods, then expression when f has a condition. Patterns
// are compiled through cache.
func ForFlow(f *flow.Flow, cache *router.PatternCache) (*Composite, error) {
	pattern, err := cache.Get(f.PathOperator.Pattern)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", f.ID, err)
	}

	evaluators := []Evaluator{NewPathEvaluator(pattern, f.PathOperator.Operator)}

	if len(f.Methods) > 0 {
		evaluators = append(evaluators, NewMethodEvaluator(f.Methods))
	}

	if f.HasCondition() {
		evaluators = append(evaluators, NewExpressionEvaluator(strings.TrimSpace(f.Condition)))
	}

	return NewComposite(evaluators...), nil
}
