package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Synthesis run metrics
	SynthesisRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesizer_runs_total",
			Help: "Total number of synthesis runs started",
		},
		[]string{"profile"},
	)

	SynthesisCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesizer_runs_completed_total",
			Help: "Total number of synthesis runs completed",
		},
		[]string{"profile", "status"},
	)

	SynthesisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthesizer_run_duration_seconds",
			Help:    "Synthesis run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"profile"},
	)

	ReportWordCount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthesizer_report_word_count",
			Help:    "Final body word count per report",
			Buckets: []float64{200, 400, 600, 800, 1200, 2000, 3000, 5000},
		},
		[]string{"profile"},
	)

	// Section generation metrics
	SectionsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesizer_sections_generated_total",
			Help: "Total number of sections generated successfully",
		},
	)

	SectionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesizer_section_failures_total",
			Help: "Total number of sections replaced by placeholders after generation failure",
		},
	)

	SectionGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "synthesizer_section_generation_duration_ms",
			Help:    "Section generation duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
	)

	// Budget controller metrics
	ExpansionRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesizer_expansion_rounds_total",
			Help: "Total number of expansion rounds issued",
		},
	)

	ExpansionsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesizer_expansions_discarded_total",
			Help: "Total number of expansion additions discarded as restatements",
		},
	)

	ReportsTruncated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesizer_reports_truncated_total",
			Help: "Total number of reports truncated to the profile maximum",
		},
	)

	DuplicateSentencesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesizer_duplicate_sentences_removed_total",
			Help: "Total number of near-duplicate sentences removed by deduplication",
		},
	)

	// Citation metrics
	CitationsAssigned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesizer_citations_assigned_total",
			Help: "Total number of unique source citations assigned",
		},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesizer_sessions_created_total",
			Help: "Total number of research sessions created",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "synthesizer_session_cache_size",
			Help: "Number of sessions held in the local cache",
		},
	)

	SessionCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesizer_session_cache_evictions_total",
			Help: "Total number of sessions evicted from the local cache",
		},
	)

	// Generator client metrics
	GeneratorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesizer_generator_requests_total",
			Help: "Total number of requests to the generation service",
		},
		[]string{"status"},
	)

	GeneratorRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesizer_generator_retries_total",
			Help: "Total number of retried generation requests",
		},
	)

	// HTTP API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthesizer_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"endpoint", "method", "status"},
	)
)
