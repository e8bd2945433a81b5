package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetStateActivatesExactlyOneLabel(t *testing.T) {
	m := NewMetrics()
	m.SetState("Running")

	for _, name := range stateNames {
		want := 0.0
		if name == "Running" {
			want = 1.0
		}
		if got := testutil.ToFloat64(m.State.WithLabelValues(name)); got != want {
			t.Errorf("state %q = %v, want %v", name, got, want)
		}
	}

	m.SetState("EStop")
	if got := testutil.ToFloat64(m.State.WithLabelValues("Running")); got != 0 {
		t.Errorf("expected Running demoted to 0 after SetState(EStop), got %v", got)
	}
	if got := testutil.ToFloat64(m.State.WithLabelValues("EStop")); got != 1 {
		t.Errorf("expected EStop set to 1, got %v", got)
	}
}

func TestIncAlarmRaisedCountsBySeverity(t *testing.T) {
	m := NewMetrics()
	m.IncAlarmRaised("critical")
	m.IncAlarmRaised("critical")
	m.IncAlarmRaised("warn")

	if got := testutil.ToFloat64(m.AlarmsRaisedTotal.WithLabelValues("critical")); got != 2 {
		t.Errorf("expected 2 critical alarms counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.AlarmsRaisedTotal.WithLabelValues("warn")); got != 1 {
		t.Errorf("expected 1 warn alarm counted, got %v", got)
	}
}

func TestSetBatchTotalsSetsAllThreeGauges(t *testing.T) {
	m := NewMetrics()
	m.SetBatchTotals(100.5, 97.3, 1.2)

	if got := testutil.ToFloat64(m.GrossBarrels); got != 100.5 {
		t.Errorf("GrossBarrels = %v, want 100.5", got)
	}
	if got := testutil.ToFloat64(m.NetBarrels); got != 97.3 {
		t.Errorf("NetBarrels = %v, want 97.3", got)
	}
	if got := testutil.ToFloat64(m.DivertedBarrels); got != 1.2 {
		t.Errorf("DivertedBarrels = %v, want 1.2", got)
	}
}

func TestIncProveResultLabelsPassedVsFailed(t *testing.T) {
	m := NewMetrics()
	m.IncProveResult(true)
	m.IncProveResult(false)
	m.IncProveResult(true)

	if got := testutil.ToFloat64(m.ProveResultsTotal.WithLabelValues("passed")); got != 2 {
		t.Errorf("expected 2 passed results, got %v", got)
	}
	if got := testutil.ToFloat64(m.ProveResultsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("expected 1 failed result, got %v", got)
	}
}

func TestSetPumpStartsInWindow(t *testing.T) {
	m := NewMetrics()
	m.SetPumpStartsInWindow(3)
	if got := testutil.ToFloat64(m.PumpStartsInWindow); got != 3 {
		t.Errorf("PumpStartsInWindow = %v, want 3", got)
	}
}
