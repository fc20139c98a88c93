package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks webhook settlement outcomes and payout transfers.
type SettlementMetrics struct {
	events    *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	oversold  prometheus.Counter
	transfers *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_webhook_events",
		Help: "Webhook events received by type.",
	}, []string{"type"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_outcomes",
		Help: "Settlement runs by outcome (settled, duplicate, unmatched, error).",
	}, []string{"outcome"})
	oversold := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_oversold_items",
		Help: "Purchases settled against an already-sold item.",
	})
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_transfers",
		Help: "Payout transfer attempts by result.",
	}, []string{"result"})
	reg.MustRegister(events, outcomes, oversold, transfers)
	return &SettlementMetrics{
		events:    events,
		outcomes:  outcomes,
		oversold:  oversold,
		transfers: transfers,
	}
}

// IncEvent counts one received webhook event of the given type.
func (s *SettlementMetrics) IncEvent(eventType string) {
	if s == nil || s.events == nil {
		return
	}
	s.events.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncOutcome counts one settlement run outcome.
func (s *SettlementMetrics) IncOutcome(outcome string) {
	if s == nil || s.outcomes == nil {
		return
	}
	s.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncOversold counts a purchase that settled against a sold item.
func (s *SettlementMetrics) IncOversold() {
	if s == nil || s.oversold == nil {
		return
	}
	s.oversold.Inc()
}

// IncTransfer counts one payout transfer attempt result.
func (s *SettlementMetrics) IncTransfer(result string) {
	if s == nil || s.transfers == nil {
		return
	}
	s.transfers.WithLabelValues(normalizeLabel(result)).Inc()
}
