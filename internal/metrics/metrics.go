package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queries counts answered questions by strategy and outcome
	// (rows, scalar, error, fallback).
	Queries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nlq",
		Name:      "queries_total",
		Help:      "Questions answered, by translation strategy and outcome.",
	}, []string{"strategy", "outcome"})

	// Fallbacks counts fallback resolutions by reason.
	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nlq",
		Name:      "fallbacks_total",
		Help:      "Fallback resolutions, by trigger.",
	}, []string{"reason"})

	TranslateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nlq",
		Name:      "translate_duration_seconds",
		Help:      "Time spent translating a question into a candidate query.",
		Buckets:   []float64{.005, .05, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"strategy"})

	DatasetsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nlq",
		Name:      "datasets_loaded",
		Help:      "Datasets currently held in the registry.",
	})

	IndexedRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nlq",
		Name:      "indexed_rows_total",
		Help:      "Rows embedded into the vector index.",
	})
)
