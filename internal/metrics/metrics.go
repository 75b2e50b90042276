package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mirador_oracle"

var (
	invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_invocations_total",
			Help:      "Total number of engine invocations, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	invocationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_invocation_seconds",
			Help:      "Engine invocation latency in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 300, 600},
		},
	)

	incidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_total",
			Help:      "Incidents that reached a terminal state, partitioned by state.",
		},
		[]string{"state"},
	)

	incidentsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "incidents_active",
			Help:      "Incidents whose investigation task is currently running.",
		},
	)

	approvalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Resolved approval requests, partitioned by decision and reason.",
		},
		[]string{"decision", "reason"},
	)

	costUSDTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Engine spend in USD, partitioned by ledger scope.",
		},
		[]string{"scope"},
	)

	alertsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_rejected_total",
			Help:      "Alerts rejected at intake, partitioned by reason.",
		},
		[]string{"reason"},
	)
)

// Register attaches mirador-oracle collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		invocationsTotal,
		invocationDurationSeconds,
		incidentsTotal,
		incidentsActive,
		approvalsTotal,
		costUSDTotal,
		alertsRejectedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveInvocation records an engine invocation duration and outcome label.
func ObserveInvocation(duration time.Duration, outcome string) {
	invocationsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	invocationDurationSeconds.Observe(duration.Seconds())
}

// IncidentStarted tracks a newly running investigation task.
func IncidentStarted() {
	incidentsActive.Inc()
}

// IncidentFinished records the terminal state of an investigation task.
func IncidentFinished(state string) {
	incidentsActive.Dec()
	incidentsTotal.WithLabelValues(state).Inc()
}

// ObserveApproval records a resolved approval.
func ObserveApproval(decision, reason string) {
	approvalsTotal.WithLabelValues(decision, reason).Inc()
}

// ObserveCost adds spend for a ledger scope.
func ObserveCost(scope string, amount float64) {
	if amount <= 0 {
		return
	}
	costUSDTotal.WithLabelValues(scope).Add(amount)
}

// AlertRejected counts an alert refused at intake.
func AlertRejected(reason string) {
	alertsRejectedTotal.WithLabelValues(reason).Inc()
}
