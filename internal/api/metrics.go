package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request and ingest counters exposed on /metrics.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linesight_api_requests_total",
		Help: "API requests served, by endpoint and status code.",
	}, []string{"endpoint", "code"})

	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linesight_analyses_total",
		Help: "Analyses computed, by kind.",
	}, []string{"kind"})

	ingestVisitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linesight_ingest_visits_total",
		Help: "Visit rows accepted into the store.",
	})

	ingestSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linesight_ingest_skipped_rows_total",
		Help: "Ingest rows skipped, by reason.",
	}, []string{"reason"})
)
