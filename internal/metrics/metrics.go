// Package metrics exposes Prometheus counters for screenings, messages and escalations.
//
// Labels never carry message text or response values.
package metrics

import (
	"time"

	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campuscare"

var (
	// screeningsTotal counts completed screenings.
	// Labels: instrument, urgency
	screeningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "results_total",
		Help:      "Total completed screenings by instrument and band urgency",
	}, []string{"instrument", "urgency"})

	safetyNoticesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "safety_notices_total",
		Help:      "Total screenings that crossed the safety threshold",
	}, []string{"instrument"})

	// messagesTotal counts classified student messages.
	// Labels: priority
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "messages_total",
		Help:      "Total classified student messages by priority",
	}, []string{"priority"})

	// generationTotal counts text-generation calls.
	// Labels: status (ok, error)
	generationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "generation_total",
		Help:      "Total text-generation calls by outcome",
	}, []string{"status"})

	generationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "generation_latency_seconds",
		Help:      "Text-generation call latency in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
	})

	// riskTransitionsTotal counts session risk level changes.
	// Labels: from, to
	riskTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "escalation",
		Name:      "transitions_total",
		Help:      "Total session risk level transitions",
	}, []string{"from", "to"})

	sharesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "escalation",
		Name:      "counsellor_shares_total",
		Help:      "Total sessions shared with the counselling team",
	})

	// pendingWrites is the number of session records the store has not yet accepted.
	pendingWrites = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "pending_writes",
		Help:      "Session records waiting to be retried after a failed store write",
	})

	// configReloadsTotal counts config hot reloads.
	// Labels: status (ok, error)
	configReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "config",
		Name:      "reloads_total",
		Help:      "Total config reload attempts by outcome",
	}, []string{"status"})
)

// RecordScreening records a completed screening.
func RecordScreening(r models.ScreeningResult) {
	screeningsTotal.WithLabelValues(r.InstrumentID, string(r.Band.Urgency)).Inc()
	if r.SafetyNoticeRequired {
		safetyNoticesTotal.WithLabelValues(r.InstrumentID).Inc()
	}
}

// RecordMessage records a classified message.
func RecordMessage(p models.Priority) {
	messagesTotal.WithLabelValues(string(p)).Inc()
}

// RecordGeneration records one text-generation call.
func RecordGeneration(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	generationTotal.WithLabelValues(status).Inc()
	generationLatency.Observe(d.Seconds())
}

// RecordTransition records a risk level change. No-op when unchanged.
func RecordTransition(from, to models.RiskLevel) {
	if from == to {
		return
	}
	riskTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// RecordShare records a counsellor share.
func RecordShare() {
	sharesTotal.Inc()
}

// RecordConfigReload records a config reload attempt.
func RecordConfigReload(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	configReloadsTotal.WithLabelValues(status).Inc()
}

// SetPendingWrites reports how many session records are queued for a store retry.
func SetPendingWrites(n int) {
	pendingWrites.Set(float64(n))
}
