package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Moves           *prometheus.CounterVec
	GamesFinished   *prometheus.CounterVec
	StaleDropped    prometheus.Counter
	EngineFailures  prometheus.Counter
	SessionFailures prometheus.Counter
	ReportFailures  prometheus.Counter
	RequestLatency  prometheus.Histogram
}

// NewMetrics registers on reg. A nil reg yields unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Moves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cheese_clock",
			Name:      "moves_total",
			Help:      "Moves applied, by origin.",
		}, []string{"origin"}),
		GamesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cheese_clock",
			Name:      "games_finished_total",
			Help:      "Finished games, by outcome kind.",
		}, []string{"outcome"}),
		StaleDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cheese_clock",
			Name:      "stale_responses_total",
			Help:      "Engine replies dropped because their game was superseded.",
		}),
		EngineFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cheese_clock",
			Name:      "engine_request_failures_total",
			Help:      "Failed bestmove requests.",
		}),
		SessionFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cheese_clock",
			Name:      "session_create_failures_total",
			Help:      "Failed newgame requests.",
		}),
		ReportFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cheese_clock",
			Name:      "move_report_failures_total",
			Help:      "Failed playermove notifications.",
		}),
		RequestLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cheese_clock",
			Name:      "engine_request_seconds",
			Help:      "Time from bestmove request to reply.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}
