package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Issuance outcome labels.
const (
	OutcomeIssued          = "issued"
	OutcomeNeedAlternative = "need_alternative"
	OutcomeEmergencyIssued = "emergency_issued"
	OutcomeEmergencyEmpty  = "emergency_empty"
)

// BankMetrics records inventory and audit activity. A nil *BankMetrics or one
// built without a registerer is a no-op.
type BankMetrics struct {
	outcomes     *prometheus.CounterVec
	unitsIssued  *prometheus.CounterVec
	donations    *prometheus.CounterVec
	auditDropped prometheus.Counter
	auditFailed  prometheus.Counter
	inventory    *prometheus.GaugeVec
}

// NewBankMetrics registers the domain metrics on the provided registerer.
func NewBankMetrics(reg prometheus.Registerer) *BankMetrics {
	if reg == nil {
		return &BankMetrics{}
	}
	m := &BankMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_issue_outcomes_total",
			Help: "Issuance requests by outcome.",
		}, []string{"outcome"}),
		unitsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_units_issued_total",
			Help: "Units withdrawn from inventory by blood type.",
		}, []string{"blood_type"}),
		donations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_donations_total",
			Help: "Recorded donations by blood type.",
		}, []string{"blood_type"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bloodbank_audit_dropped_total",
			Help: "Audit entries dropped because the queue was full.",
		}),
		auditFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bloodbank_audit_write_failures_total",
			Help: "Audit entries that failed to persist.",
		}),
		inventory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bloodbank_inventory_units",
			Help: "Units on hand by blood type at the last refresh.",
		}, []string{"blood_type"}),
	}
	reg.MustRegister(m.outcomes, m.unitsIssued, m.donations, m.auditDropped, m.auditFailed, m.inventory)
	return m
}

// IncOutcome counts one issuance outcome.
func (m *BankMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddUnitsIssued adds units withdrawn for bloodType.
func (m *BankMetrics) AddUnitsIssued(bloodType string, units int) {
	if m == nil || m.unitsIssued == nil || units <= 0 {
		return
	}
	m.unitsIssued.WithLabelValues(normalizeLabel(bloodType)).Add(float64(units))
}

// IncDonation counts one donation of bloodType.
func (m *BankMetrics) IncDonation(bloodType string) {
	if m == nil || m.donations == nil {
		return
	}
	m.donations.WithLabelValues(normalizeLabel(bloodType)).Inc()
}

// IncAuditDropped counts an audit entry lost to back-pressure.
func (m *BankMetrics) IncAuditDropped() {
	if m == nil || m.auditDropped == nil {
		return
	}
	m.auditDropped.Inc()
}

// IncAuditFailed counts an audit entry whose insert failed.
func (m *BankMetrics) IncAuditFailed() {
	if m == nil || m.auditFailed == nil {
		return
	}
	m.auditFailed.Inc()
}

// SetInventoryUnits publishes the current on-hand count for bloodType.
func (m *BankMetrics) SetInventoryUnits(bloodType string, units int) {
	if m == nil || m.inventory == nil {
		return
	}
	m.inventory.WithLabelValues(normalizeLabel(bloodType)).Set(float64(units))
}

// HTTPMetrics records request latency per route pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP histogram on the provided registerer.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bloodbank_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	reg.MustRegister(duration)
	return &HTTPMetrics{duration: duration}
}

// Observe records one request.
func (h *HTTPMetrics) Observe(method, route, status string, elapsed time.Duration) {
	if h == nil || h.duration == nil {
		return
	}
	h.duration.WithLabelValues(method, normalizeLabel(route), status).Observe(elapsed.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
