package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	registry *prometheus.Registry
	uploads  *prometheus.CounterVec
	queries  *prometheus.CounterVec
	chunks   prometheus.Gauge
}

// newMetrics uses a dedicated registry so each Server owns its collectors.
func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "uploads_total",
			Help:      "Upload requests by outcome.",
		}, []string{"status"}),
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "chat_queries_total",
			Help:      "Chat queries by outcome.",
		}, []string{"status"}),
		chunks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docchat",
			Name:      "indexed_chunks",
			Help:      "Number of chunks in the vector store.",
		}),
	}
}
