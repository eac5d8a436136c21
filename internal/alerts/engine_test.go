package alerts

import (
	"sync"
	"testing"
	"time"

	"github.com/linesight/linesight/internal/config"
)

func TestEvalCondition(t *testing.T) {
	m := LineMetrics{
		Line:                 "SMT-1",
		TotalHeldUnits:       25,
		WorstEfficiency:      55.5,
		CriticalFlowCount:    3,
		WIPCount:             12,
		SuspiciousPercentage: 40.0,
		BatchCount:           2,
		MaxDelayHours:        6.5,
	}

	tests := []struct {
		cond  string
		want  bool
		value float64
	}{
		{"total_held_units > 20", true, 25},
		{"total_held_units > 25", false, 25},
		{"total_held_units >= 25", true, 25},
		{"worst_efficiency < 60", true, 55.5},
		{"worst_efficiency <= 55.5", true, 55.5},
		{"critical_flow_count == 3", true, 3},
		{"wip_count < 10", false, 12},
		{"suspicious_percentage > 30", true, 40},
		{"batch_count > 0", true, 2},
		{"max_delay_hours > 4", true, 6.5},
		{"unknown_field > 1", false, 0},
		{"malformed condition", false, 0},
		{"total_held_units ~ 20", false, 0},
	}

	for _, tt := range tests {
		got, value := evalCondition(tt.cond, m)
		if got != tt.want {
			t.Errorf("evalCondition(%q) = %v, want %v", tt.cond, got, tt.want)
		}
		if value != tt.value {
			t.Errorf("evalCondition(%q) value = %v, want %v", tt.cond, value, tt.value)
		}
	}
}

func TestEngineFireAndResolve(t *testing.T) {
	e := New(config.AlertsConfig{
		Rules: []config.AlertRule{
			{Name: "held-units", Condition: "total_held_units > 20", Severity: "critical"},
		},
	})

	e.Evaluate(LineMetrics{Line: "SMT-1", TotalHeldUnits: 25})

	active := e.Active()
	if len(active) != 1 {
		t.Fatalf("Active() returned %d alerts, want 1", len(active))
	}
	a := active[0]
	if a.State != "firing" {
		t.Errorf("State = %q, want firing", a.State)
	}
	if a.Line != "SMT-1" || a.RuleName != "held-units" {
		t.Errorf("unexpected alert identity: line=%q rule=%q", a.Line, a.RuleName)
	}
	if a.Severity != "critical" {
		t.Errorf("Severity = %q, want critical", a.Severity)
	}
	if a.Value != 25 {
		t.Errorf("Value = %v, want 25", a.Value)
	}

	// Condition clears: the alert resolves and stays visible as recent history.
	e.Evaluate(LineMetrics{Line: "SMT-1", TotalHeldUnits: 5})

	active = e.Active()
	if len(active) != 1 {
		t.Fatalf("Active() after resolve returned %d alerts, want 1", len(active))
	}
	if active[0].State != "resolved" {
		t.Errorf("State = %q, want resolved", active[0].State)
	}
	if active[0].ResolvedAt == nil {
		t.Error("ResolvedAt not set on resolved alert")
	}
}

func TestEngineCooldownSuppressesRefire(t *testing.T) {
	e := New(config.AlertsConfig{
		Rules: []config.AlertRule{
			{Name: "held-units", Condition: "total_held_units > 20", Cooldown: time.Hour},
		},
	})

	m := LineMetrics{Line: "SMT-1", TotalHeldUnits: 30}
	e.Evaluate(m)

	e.mu.Lock()
	first := e.lastFire["held-units:SMT-1"]
	e.mu.Unlock()

	e.Evaluate(m)

	e.mu.Lock()
	second := e.lastFire["held-units:SMT-1"]
	e.mu.Unlock()

	if !second.Equal(first) {
		t.Errorf("lastFire advanced within cooldown: %v -> %v", first, second)
	}
	if got := len(e.Active()); got != 1 {
		t.Errorf("Active() returned %d alerts, want 1", got)
	}
}

func TestEngineRefiresAfterCooldown(t *testing.T) {
	e := New(config.AlertsConfig{
		Rules: []config.AlertRule{
			{Name: "held-units", Condition: "total_held_units > 20", Cooldown: time.Minute},
		},
	})

	m := LineMetrics{Line: "SMT-1", TotalHeldUnits: 30}
	e.Evaluate(m)

	// Push the last fire time beyond the cooldown window.
	e.mu.Lock()
	e.lastFire["held-units:SMT-1"] = time.Now().Add(-2 * time.Minute)
	first := e.active["held-units:SMT-1"].ID
	e.mu.Unlock()

	e.Evaluate(m)

	e.mu.Lock()
	second := e.active["held-units:SMT-1"].ID
	e.mu.Unlock()

	if second == first {
		t.Error("alert did not refire after cooldown elapsed")
	}
}

func TestEngineSeparateLinesTrackedIndependently(t *testing.T) {
	e := New(config.AlertsConfig{
		Rules: []config.AlertRule{
			{Name: "held-units", Condition: "total_held_units > 20"},
		},
	})

	e.Evaluate(LineMetrics{Line: "SMT-1", TotalHeldUnits: 30})
	e.Evaluate(LineMetrics{Line: "SMT-2", TotalHeldUnits: 30})

	if got := len(e.Active()); got != 2 {
		t.Fatalf("Active() returned %d alerts, want 2", got)
	}

	e.Evaluate(LineMetrics{Line: "SMT-1", TotalHeldUnits: 0})

	firing := 0
	for _, a := range e.Active() {
		if a.State == "firing" {
			firing++
			if a.Line != "SMT-2" {
				t.Errorf("firing alert on line %q, want SMT-2", a.Line)
			}
		}
	}
	if firing != 1 {
		t.Errorf("%d firing alerts after partial resolve, want 1", firing)
	}
}

func TestEngineDefaultSeverity(t *testing.T) {
	e := New(config.AlertsConfig{
		Rules: []config.AlertRule{
			{Name: "wip", Condition: "wip_count > 5"},
		},
	})

	e.Evaluate(LineMetrics{Line: "SMT-1", WIPCount: 10})

	active := e.Active()
	if len(active) != 1 {
		t.Fatalf("Active() returned %d alerts, want 1", len(active))
	}
	if active[0].Severity != "warning" {
		t.Errorf("Severity = %q, want warning default", active[0].Severity)
	}
}

func TestEngineConcurrentEvaluate(t *testing.T) {
	e := New(config.AlertsConfig{
		Rules: []config.AlertRule{
			{Name: "held-units", Condition: "total_held_units > 20"},
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(held int) {
			defer wg.Done()
			e.Evaluate(LineMetrics{Line: "SMT-1", TotalHeldUnits: held})
		}(i * 5)
	}
	wg.Wait()

	// Must not panic or deadlock; at most one alert is active for the key.
	if got := len(e.Active()); got > 1 {
		t.Errorf("Active() returned %d alerts, want at most 1", got)
	}
}

func TestSeverityHelpers(t *testing.T) {
	if got := severityLabel("critical"); got != "[CRITICAL]" {
		t.Errorf("severityLabel(critical) = %q", got)
	}
	if got := severityLabel("info"); got != "[INFO]" {
		t.Errorf("severityLabel(info) = %q", got)
	}
	if got := severityColor("warning"); got != "FFAB40" {
		t.Errorf("severityColor(warning) = %q", got)
	}
}
