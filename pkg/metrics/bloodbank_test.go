package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBankMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBankMetrics(reg)

	m.IncOutcome(OutcomeIssued)
	m.IncOutcome(OutcomeIssued)
	m.AddUnitsIssued("A+", 3)
	m.AddUnitsIssued("A+", 0)
	m.IncDonation("O-")
	m.IncAuditDropped()
	m.IncAuditFailed()

	if got := testutil.ToFloat64(m.outcomes.WithLabelValues(OutcomeIssued)); got != 2 {
		t.Fatalf("expected 2 issued outcomes, got %v", got)
	}
	if got := testutil.ToFloat64(m.unitsIssued.WithLabelValues("A+")); got != 3 {
		t.Fatalf("expected 3 units, got %v", got)
	}
	if got := testutil.ToFloat64(m.donations.WithLabelValues("O-")); got != 1 {
		t.Fatalf("expected 1 donation, got %v", got)
	}
	if got := testutil.ToFloat64(m.auditDropped); got != 1 {
		t.Fatalf("expected 1 dropped, got %v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *BankMetrics
	m.IncOutcome(OutcomeIssued)
	m.IncAuditFailed()

	unregistered := NewBankMetrics(nil)
	unregistered.AddUnitsIssued("O-", 2)

	var h *HTTPMetrics
	h.Observe("GET", "/inventory", "200", time.Millisecond)
	NewHTTPMetrics(nil).Observe("GET", "", "200", time.Millisecond)
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewHTTPMetrics(reg)
	h.Observe("POST", "/issue", "200", 10*time.Millisecond)
	if got := testutil.CollectAndCount(h.duration); got != 1 {
		t.Fatalf("expected 1 series, got %d", got)
	}
}
