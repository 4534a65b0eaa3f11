// Package cel provides a CEL-based filter evaluator for telemetry listings.
package cel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"

	"github.com/signalgate/signalgate/internal/domain/telemetry"
)

// maxExpressionLength is the maximum allowed length for filter expressions.
const maxExpressionLength = 1024

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion DoS.
const maxCostBudget = 100_000

// evalTimeout is the maximum time allowed for a single filter evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// FilterEvaluator compiles and evaluates CEL filter expressions against
// telemetry entities. Compiled programs are cached by expression hash so
// repeated tool calls with the same filter skip recompilation.
type FilterEvaluator struct {
	serviceEnv *cel.Env
	alarmEnv   *cel.Env

	mu    sync.Mutex
	cache map[uint64]cel.Program
}

// NewFilterEvaluator creates an evaluator with environments for service and
// alarm filters.
func NewFilterEvaluator() (*FilterEvaluator, error) {
	serviceEnv, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("environment", cel.StringType),
		cel.Variable("platform", cel.StringType),
		cel.Variable("healthy", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service filter environment: %w", err)
	}

	alarmEnv, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("service", cel.StringType),
		cel.Variable("state", cel.StringType),
		cel.Variable("severity", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create alarm filter environment: %w", err)
	}

	return &FilterEvaluator{
		serviceEnv: serviceEnv,
		alarmEnv:   alarmEnv,
		cache:      make(map[uint64]cel.Program),
	}, nil
}

// MatchService reports whether the service satisfies the filter expression.
func (e *FilterEvaluator) MatchService(ctx context.Context, expr string, svc telemetry.Service) (bool, error) {
	prg, err := e.compile(e.serviceEnv, "service", expr)
	if err != nil {
		return false, err
	}
	return e.evaluate(ctx, prg, map[string]any{
		"name":        svc.Name,
		"environment": svc.Environment,
		"platform":    svc.Platform,
		"healthy":     svc.Healthy,
	})
}

// MatchAlarm reports whether the alarm satisfies the filter expression.
func (e *FilterEvaluator) MatchAlarm(ctx context.Context, expr string, alarm telemetry.Alarm) (bool, error) {
	prg, err := e.compile(e.alarmEnv, "alarm", expr)
	if err != nil {
		return false, err
	}
	return e.evaluate(ctx, prg, map[string]any{
		"name":     alarm.Name,
		"service":  alarm.Service,
		"state":    alarm.State,
		"severity": alarm.Severity,
	})
}

// compile validates and compiles an expression, consulting the cache first.
// The cache key mixes the environment kind with the expression text so a
// service filter never resolves to a program checked against alarm variables.
func (e *FilterEvaluator) compile(env *cel.Env, kind, expr string) (cel.Program, error) {
	if err := validateExpression(expr); err != nil {
		return nil, err
	}

	key := cacheKey(kind, expr)

	e.mu.Lock()
	if prg, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return prg, nil
	}
	e.mu.Unlock()

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", issues.Err())
	}
	if ast.OutputType().String() != cel.BoolType.String() {
		return nil, fmt.Errorf("filter expression must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("filter program creation failed: %w", err)
	}

	e.mu.Lock()
	e.cache[key] = prg
	e.mu.Unlock()

	return prg, nil
}

// evaluate runs a compiled program with a bounded deadline.
func (e *FilterEvaluator) evaluate(ctx context.Context, prg cel.Program, vars map[string]any) (bool, error) {
	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	val, _, err := prg.ContextEval(evalCtx, vars)
	if err != nil {
		return false, fmt.Errorf("filter evaluation failed: %w", err)
	}

	result, ok := val.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter evaluated to %T, want bool", val.Value())
	}
	return result, nil
}

// validateExpression enforces length and nesting safety limits before
// handing the expression to the compiler.
func validateExpression(expr string) error {
	if expr == "" {
		return errors.New("filter expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("filter expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("filter expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// cacheKey hashes the environment kind and expression text.
func cacheKey(kind, expr string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(kind)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(expr)
	return h.Sum64()
}

// Compile-time interface verification.
var _ telemetry.FilterEvaluator = (*FilterEvaluator)(nil)
