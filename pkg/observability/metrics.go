package observability

import (
	"context"

	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors fed by lifecycle hooks.
type Metrics struct {
	Turns              *prometheus.CounterVec
	LeadsQueued        *prometheus.CounterVec
	LeadsDone          *prometheus.CounterVec
	LeadDuration       *prometheus.HistogramVec
	ResolutionFailures *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_turns_total",
			Help: "Conversation turns by flow and outcome",
		}, []string{"flow_id", "outcome", "code"}),
		LeadsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_leads_queued_total",
			Help: "Lead creation jobs queued",
		}, []string{"flow_id"}),
		LeadsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_leads_done_total",
			Help: "Lead creation jobs finished by result",
		}, []string{"flow_id", "result"}),
		LeadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadflow_lead_duration_seconds",
			Help:    "Duration of lead creation jobs",
			Buckets: prometheus.DefBuckets,
		}, []string{"flow_id"}),
		ResolutionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadflow_dynamic_resolution_failures_total",
			Help: "Failed dynamic option queries",
		}, []string{"query"}),
	}
	reg.MustRegister(m.Turns, m.LeadsQueued, m.LeadsDone, m.LeadDuration, m.ResolutionFailures)
	return m
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurn: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(e.FlowID, e.Outcome, e.Code).Inc()
		},
		OnLeadQueued: func(_ context.Context, e *domain.LeadEvent) {
			m.LeadsQueued.WithLabelValues(e.FlowID).Inc()
		},
		OnLeadDone: func(_ context.Context, e *domain.LeadEvent) {
			result := "success"
			if e.Err != nil {
				result = "failure"
			}
			m.LeadsDone.WithLabelValues(e.FlowID, result).Inc()
			if e.Duration > 0 {
				m.LeadDuration.WithLabelValues(e.FlowID).Observe(e.Duration.Seconds())
			}
		},
		OnResolutionError: func(_ context.Context, e *domain.ResolutionEvent) {
			m.ResolutionFailures.WithLabelValues(e.Query).Inc()
		},
	}
}
