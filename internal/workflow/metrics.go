package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: полный цикл обработки одной подачи решения
	DecisionDuration *prometheus.HistogramVec

	// Traffic: поданные решения по воротам и видам
	DecisionsTotal *prometheus.CounterVec

	// Переходы статусов (включая каскадные)
	TransitionsTotal *prometheus.CounterVec

	// Contention: проигранные проверки версии
	VersionConflicts prometheus.Counter

	// Каскад: сколько соседних заявок разрешено автоматически
	CascadeResolved *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		DecisionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ownc_decision_duration_seconds",
			Help:    "Histogram of decision submission latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"gate", "result"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ownc_decisions_total",
			Help: "Total number of accepted decisions.",
		}, []string{"gate", "kind"}),

		TransitionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ownc_transitions_total",
			Help: "Total number of status transitions.",
		}, []string{"status", "source"}), // source: decision, cancel, cascade

		VersionConflicts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "ownc_version_conflicts_total",
			Help: "Total number of lost optimistic-version checks.",
		}),

		CascadeResolved: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "ownc_cascade_resolved_total",
			Help: "Sibling requests resolved by cascade.",
		}, []string{"mode"}), // mode: auto_approved, auto_rejected
	}
}
