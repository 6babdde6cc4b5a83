package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comic_pipeline_stage_outcomes_total",
			Help: "Pipeline stage outcomes by stage and result.",
		},
		[]string{"stage", "outcome"},
	)
	rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comic_pipeline_rejections_total",
			Help: "Pipeline rejections by reason code.",
		},
		[]string{"reason"},
	)
	providerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comic_pipeline_provider_call_duration_seconds",
			Help:    "Histogram of provider call durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"capability", "mode"},
	)
	fallbackAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comic_pipeline_model_fallback_total",
			Help: "Times the orchestrator retried against the fallback model.",
		},
	)
	failOpenEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comic_pipeline_safety_fail_open_total",
			Help: "Times a safety evaluator fault was swallowed and treated as passing.",
		},
	)
)
