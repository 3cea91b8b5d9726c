package el

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/vyrodovalexey/flowgate/internal/observability"
)

// Variable names available to expressions.
const (
	VarRequest    = "request"
	VarResponse   = "response"
	VarAttributes = "attributes"
	VarPhase      = "phase"
)

// ErrEvaluation is matched by every error returned from an evaluation.
var ErrEvaluation = errors.New("expression evaluation failed")

// Kind is the value type an expression is expected to produce.
type Kind int

// Expected result kinds.
const (
	KindAny Kind = iota
	KindBool
	KindString
	KindInt
	KindDouble
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	default:
		return "any"
	}
}

// EvaluationError describes a failed compilation or evaluation.
type EvaluationError struct {
	Expression string
	Cause      error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("expression %q: %v", e.Expression, e.Cause)
}

// Unwrap returns the underlying error.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

// Activation holds the variable values of one evaluation.
type Activation map[string]any

// Evaluator evaluates expressions against an activation.
type Evaluator interface {
	// Evaluate returns the value of expr, failing when it cannot be
	// compiled, fails at runtime, or does not produce the expected kind.
	Evaluate(expr string, vars Activation, expected Kind) (any, error)

	// EvaluateBool is Evaluate with KindBool.
	EvaluateBool(expr string, vars Activation) (bool, error)

	// Check compiles expr without evaluating it.
	Check(expr string) error
}

// CELEvaluator implements Evaluator with cel-go.
type CELEvaluator struct {
	env    *cel.Env
	logger observability.Logger

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// Option is a functional option for the evaluator.
type Option func(*CELEvaluator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(e *CELEvaluator) {
		e.logger = logger
	}
}

// NewCELEvaluator creates an evaluator with the gateway environment.
func NewCELEvaluator(opts ...Option) (*CELEvaluator, error) {
	e := &CELEvaluator{
		logger:   observability.NopLogger(),
		programs: make(map[string]cel.Program),
	}

	for _, opt := range opts {
		opt(e)
	}

	env, err := newEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	e.env = env

	return e, nil
}

func newEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable(VarRequest, cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(VarResponse, cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(VarAttributes, cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(VarPhase, cel.StringType),

		cel.Function("ip_in_range",
			cel.Overload("ip_in_range_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(ipInRangeBinding),
			),
		),
	)
}

// ipInRangeBinding checks if an IP is in a CIDR range. The IP may carry
// a port as found in http.Request.RemoteAddr.
func ipInRangeBinding(ip, cidr ref.Val) ref.Val {
	ipStr, ok := ip.Value().(string)
	if !ok {
		return types.False
	}
	cidrStr, ok := cidr.Value().(string)
	if !ok {
		return types.False
	}

	if host, _, err := net.SplitHostPort(ipStr); err == nil {
		ipStr = host
	}

	parsedIP := net.ParseIP(ipStr)
	if parsedIP == nil {
		return types.False
	}

	_, network, err := net.ParseCIDR(cidrStr)
	if err != nil {
		return types.False
	}

	return types.Bool(network.Contains(parsedIP))
}

// Check compiles expr without evaluating it.
func (e *CELEvaluator) Check(expr string) error {
	_, err := e.program(expr)
	return err
}

// EvaluateBool evaluates a boolean expression.
func (e *CELEvaluator) EvaluateBool(expr string, vars Activation) (bool, error) {
	v, err := e.Evaluate(expr, vars, KindBool)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Evaluate evaluates expr against vars.
func (e *CELEvaluator) Evaluate(expr string, vars Activation, expected Kind) (any, error) {
	prg, err := e.program(expr)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(map[string]any(withDefaults(vars)))
	if err != nil {
		return nil, &EvaluationError{Expression: expr, Cause: err}
	}

	v, err := convert(out, expected)
	if err != nil {
		return nil, &EvaluationError{Expression: expr, Cause: err}
	}
	return v, nil
}

// program returns the cached program for expr, compiling it on first use.
func (e *CELEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.programs[expr]; ok {
		return prg, nil
	}

	if strings.TrimSpace(expr) == "" {
		return nil, &EvaluationError{Expression: expr, Cause: errors.New("empty expression")}
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, &EvaluationError{Expression: expr, Cause: issues.Err()}
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, &EvaluationError{Expression: expr, Cause: err}
	}

	e.programs[expr] = prg
	e.logger.Debug("compiled expression", observability.String("expression", expr))

	return prg, nil
}

// withDefaults fills in missing variables so expressions referring to
// them fail on field access rather than on an unbound variable.
func withDefaults(vars Activation) Activation {
	out := make(Activation, 4+len(vars))
	out[VarRequest] = map[string]any{}
	out[VarResponse] = map[string]any{}
	out[VarAttributes] = map[string]any{}
	out[VarPhase] = ""
	for k, v := range vars {
		out[k] = v
	}
	return out
}

var (
	anyMapType  = reflect.TypeOf(map[string]any{})
	anyListType = reflect.TypeOf([]any{})
)

func convert(v ref.Val, expected Kind) (any, error) {
	switch expected {
	case KindBool:
		b, ok := v.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool result, got %s", v.Type().TypeName())
		}
		return b, nil
	case KindString:
		s, ok := v.Value().(string)
		if !ok {
			return nil, fmt.Errorf("expected string result, got %s", v.Type().TypeName())
		}
		return s, nil
	case KindInt:
		i, ok := v.Value().(int64)
		if !ok {
			return nil, fmt.Errorf("expected int result, got %s", v.Type().TypeName())
		}
		return i, nil
	case KindDouble:
		switch n := v.Value().(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
		return nil, fmt.Errorf("expected double result, got %s", v.Type().TypeName())
	default:
		return native(v), nil
	}
}

func native(v ref.Val) any {
	switch v.(type) {
	case traits.Mapper:
		if m, err := v.ConvertToNative(anyMapType); err == nil {
			return m
		}
	case traits.Lister:
		if l, err := v.ConvertToNative(anyListType); err == nil {
			return l
		}
	}
	return v.Value()
}
