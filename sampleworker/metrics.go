package sampleworker

import (
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/errgo.v1"
)

type metrics struct {
	ticks         prometheus.Counter
	slowTicks     prometheus.Counter
	fetchFailures prometheus.Counter
	sinkFailures  prometheus.Counter
	delivered     prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p1_ticks_total",
			Help: "Total meter samples attempted.",
		}),
		slowTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p1_slow_ticks_total",
			Help: "Total meter samples that included gas readings.",
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p1_fetch_failures_total",
			Help: "Samples lost because the meter could not be read.",
		}),
		sinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p1_sink_failures_total",
			Help: "Samples lost because the sink rejected the write.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "p1_snapshots_delivered_total",
			Help: "Snapshots successfully written to the sink.",
		}),
	}
}

func (m *metrics) register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.ticks,
		m.slowTicks,
		m.fetchFailures,
		m.sinkFailures,
		m.delivered,
	} {
		if err := r.Register(c); err != nil {
			return errgo.Mask(err)
		}
	}
	return nil
}
