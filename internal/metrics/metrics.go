// Package metrics exposes competition counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	Logins = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindbuzzer",
		Name:      "logins_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})

	Submissions = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindbuzzer",
		Name:      "submissions_total",
		Help:      "Graded submissions by round and result.",
	}, []string{"round", "result"})

	RoundsFinalized = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindbuzzer",
		Name:      "rounds_finalized_total",
		Help:      "Finalized rounds by round and resulting status.",
	}, []string{"round", "status"})

	CheatFlags = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Namespace: "mindbuzzer",
		Name:      "cheat_flags_total",
		Help:      "Sessions flagged for leaving the round page.",
	})

	OperatorActions = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindbuzzer",
		Name:      "operator_actions_total",
		Help:      "Operator panel actions by kind.",
	}, []string{"action"})

	ActiveRounds = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "mindbuzzer",
		Name:      "active_rounds",
		Help:      "Rounds with a running timer.",
	})

	Terminals = promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "mindbuzzer",
		Name:      "terminals",
		Help:      "Terminals held in memory.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
