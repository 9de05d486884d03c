package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invsession"

var (
	authOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_operations_total",
			Help:      "Session manager operations by name and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	refreshCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_requests_total",
			Help:      "Refresh requests seen by the coordinator; role is leader or waiter.",
		},
		[]string{"role", "outcome"},
	)

	discardedWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_session_writes_total",
		Help:      "Auth results dropped because the session generation moved on.",
	})

	renewalsScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renewals_total",
			Help:      "Proactive renewals by trigger (timer, safety_check, immediate).",
		},
		[]string{"trigger"},
	)

	authenticated = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_authenticated",
		Help:      "1 while the session is authenticated.",
	})
)

// Register adds the session collectors to r.
func Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{authOperations, refreshCalls, discardedWrites, renewalsScheduled, authenticated} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// AuthOperation records one session manager operation.
func AuthOperation(op string, err error) {
	authOperations.WithLabelValues(op, outcome(err)).Inc()
}

// Refresh records one caller of the refresh coordinator.
func Refresh(shared bool, err error) {
	role := "leader"
	if shared {
		role = "waiter"
	}
	refreshCalls.WithLabelValues(role, outcome(err)).Inc()
}

func StaleWrite() {
	discardedWrites.Inc()
}

func Renewal(trigger string) {
	renewalsScheduled.WithLabelValues(trigger).Inc()
}

func SetAuthenticated(v bool) {
	if v {
		authenticated.Set(1)
		return
	}
	authenticated.Set(0)
}
