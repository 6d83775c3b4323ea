package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	evaluations *prometheus.CounterVec
	students    prometheus.Counter
	duration    *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gradegraph",
			Name:      "evaluations_total",
			Help:      "Evaluation requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		students: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gradegraph",
			Name:      "students_evaluated_total",
			Help:      "Students evaluated across all batch and course requests.",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gradegraph",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating, by mode.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"mode"}),
	}
}
