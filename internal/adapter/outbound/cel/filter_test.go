package cel

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/signalgate/signalgate/internal/domain/telemetry"
)

func newTestEvaluator(t *testing.T) *FilterEvaluator {
	t.Helper()
	e, err := NewFilterEvaluator()
	if err != nil {
		t.Fatalf("NewFilterEvaluator() error: %v", err)
	}
	return e
}

func TestMatchService(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t)
	svc := telemetry.Service{
		Name:        "checkout-api",
		Environment: "production",
		Platform:    "eks",
		Healthy:     true,
		LastSeen:    time.Now().UTC(),
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"environment match", `environment == "production"`, true},
		{"environment mismatch", `environment == "staging"`, false},
		{"healthy and platform", `healthy && platform == "eks"`, true},
		{"name prefix", `name.startsWith("checkout")`, true},
		{"negation", `!healthy`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.MatchService(context.Background(), tt.expr, svc)
			if err != nil {
				t.Fatalf("MatchService(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("MatchService(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestMatchAlarm(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t)
	alarm := telemetry.Alarm{
		Name:     "errors-high",
		Service:  "payments-worker",
		State:    telemetry.AlarmStateAlarm,
		Severity: "critical",
	}

	got, err := e.MatchAlarm(context.Background(), `state == "ALARM" && severity == "critical"`, alarm)
	if err != nil {
		t.Fatalf("MatchAlarm() error: %v", err)
	}
	if !got {
		t.Error("MatchAlarm() = false, want true")
	}
}

func TestMatchService_InvalidExpressions(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t)
	svc := telemetry.Service{Name: "checkout-api"}

	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"syntax error", `environment ==`},
		{"unknown variable", `region == "us-east-1"`},
		{"non-bool result", `name`},
		{"too long", `name == "` + strings.Repeat("x", maxExpressionLength) + `"`},
		{"nesting too deep", strings.Repeat("(", 60) + "healthy" + strings.Repeat(")", 60)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.MatchService(context.Background(), tt.expr, svc); err == nil {
				t.Errorf("MatchService(%q) error = nil, want error", tt.expr)
			}
		})
	}
}

// TestCompileCache verifies the same expression is served from the program
// cache and that service/alarm filters don't collide on the same text.
func TestCompileCache(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t)
	ctx := context.Background()
	svc := telemetry.Service{Name: "a"}
	alarm := telemetry.Alarm{Name: "a"}

	for i := 0; i < 3; i++ {
		if _, err := e.MatchService(ctx, `name == "a"`, svc); err != nil {
			t.Fatalf("MatchService() error: %v", err)
		}
	}
	if _, err := e.MatchAlarm(ctx, `name == "a"`, alarm); err != nil {
		t.Fatalf("MatchAlarm() with same expression text error: %v", err)
	}

	e.mu.Lock()
	entries := len(e.cache)
	e.mu.Unlock()
	if entries != 2 {
		t.Errorf("cache entries = %d, want 2 (one per environment kind)", entries)
	}
}
