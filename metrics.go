package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts what the show does. It satisfies feud.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	Operations       *prometheus.CounterVec
	Syncs            *prometheus.CounterVec
	Clients          *prometheus.GaugeVec
	Celebrations     prometheus.Counter
	RejectedCommands *prometheus.CounterVec
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chungsuc",
				Name:      "operations_total",
				Help:      "Game state changes applied, by operation",
			},
			[]string{"op"},
		),
		Syncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chungsuc",
				Name:      "sync_total",
				Help:      "State snapshots received from other instances, by result",
			},
			[]string{"result"},
		),
		Clients: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "chungsuc",
				Name:      "clients",
				Help:      "Connected websocket clients, by page",
			},
			[]string{"page"},
		),
		Celebrations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "chungsuc",
				Name:      "celebrations_total",
				Help:      "Win celebrations started",
			},
		),
		RejectedCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chungsuc",
				Name:      "commands_rejected_total",
				Help:      "Websocket commands that were not applied, by reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *Metrics) Operation(name string) {
	m.Operations.WithLabelValues(name).Inc()
}

func (m *Metrics) SyncApplied() {
	m.Syncs.WithLabelValues("applied").Inc()
}

func (m *Metrics) SyncRejected() {
	m.Syncs.WithLabelValues("rejected").Inc()
}

func serveMetrics(cfg *Config, m *Metrics) httprouter.Handle {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)

		h.ServeHTTP(w, r)
	}
}
