// Package metrics exposes Prometheus counters for the lead pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the pipeline counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	ingested   *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	validated  *prometheus.CounterVec
	downgrades prometheus.Counter
	exports    *prometheus.CounterVec
	audit      *prometheus.CounterVec
}

// New creates the counters and registers them with reg, or with the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvest",
			Subsystem: "leads",
			Name:      "ingested_total",
			Help:      "Leads added to the collection",
		}, []string{"source"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvest",
			Subsystem: "leads",
			Name:      "duplicates_total",
			Help:      "Candidate leads dropped as duplicates of (name, company)",
		}, []string{"source"}),
		validated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvest",
			Subsystem: "leads",
			Name:      "validated_total",
			Help:      "Leads scored by the batch validator, by resulting priority",
		}, []string{"priority"}),
		downgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "harvest",
			Subsystem: "leads",
			Name:      "downgrades_total",
			Help:      "Leads forced to low priority because of validation issues",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvest",
			Subsystem: "export",
			Name:      "leads_total",
			Help:      "Leads written by exports",
		}, []string{"format"}),
		audit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harvest",
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Audit entries appended",
		}, []string{"action"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.ingested, m.duplicates, m.validated, m.downgrades, m.exports, m.audit)
	return m
}

func (m *Metrics) ObserveIngest(source string, added, duplicates int) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(source).Add(float64(added))
	m.duplicates.WithLabelValues(source).Add(float64(duplicates))
}

func (m *Metrics) ObserveValidated(priority string) {
	if m == nil {
		return
	}
	m.validated.WithLabelValues(priority).Inc()
}

func (m *Metrics) ObserveDowngrade() {
	if m == nil {
		return
	}
	m.downgrades.Inc()
}

func (m *Metrics) ObserveExport(format string, count int) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format).Add(float64(count))
}

func (m *Metrics) ObserveAudit(action string) {
	if m == nil {
		return
	}
	m.audit.WithLabelValues(action).Inc()
}
