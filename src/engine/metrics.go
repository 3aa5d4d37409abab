package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	round       prometheus.Gauge
	produced    prometheus.Counter
	skipped     prometheus.Counter
	proved      prometheus.Counter
	forwarded   prometheus.Counter
	events      *prometheus.CounterVec
	rpcs        *prometheus.CounterVec
	bufferBytes prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		round: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mempool",
			Name:      "round",
			Help:      "Current round of the local DAG.",
		}),
		produced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mempool",
			Name:      "points_produced_total",
			Help:      "Points produced by the local node.",
		}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mempool",
			Name:      "rounds_skipped_total",
			Help:      "Rounds the local node did not produce a point for.",
		}),
		proved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mempool",
			Name:      "points_proved_total",
			Help:      "Local points that collected enough signatures.",
		}),
		forwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mempool",
			Name:      "rounds_forwarded_total",
			Help:      "Times consensus moved forward without the local node.",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mempool",
			Name:      "consensus_events_total",
			Help:      "Events received from the broadcast filter, by kind.",
		}, []string{"kind"}),
		rpcs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mempool",
			Name:      "rpc_requests_total",
			Help:      "Requests served to other peers, by type.",
		}, []string{"type"}),
		bufferBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mempool",
			Name:      "input_buffer_bytes",
			Help:      "Payload bytes waiting for a local point.",
		}),
	}
}
