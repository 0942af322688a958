package observability

import (
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	summaries       *prometheus.CounterVec
	llmFallbacks    *prometheus.CounterVec
	billWrites      *prometheus.CounterVec
	exports         *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"type"},
		),
		summaries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_summaries_total",
				Help: "Report narratives served, by the strategy that produced them.",
			},
			[]string{"source"},
		),
		llmFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_llm_fallbacks_total",
				Help: "LLM summaries replaced by the deterministic narrative.",
			},
			[]string{"provider"},
		),
		billWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_bill_writes_total",
				Help: "Bill create and update operations.",
			},
			[]string{"operation", "status"},
		),
		exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_report_exports_total",
				Help: "Report exports by format.",
			},
			[]string{"format"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrSummary counts a narrative served from source.
func (m *Metrics) IncrSummary(source domain.SummaryStrategy) {
	m.summaries.WithLabelValues(string(source)).Inc()
}

// IncrLLMFallback counts an LLM failure answered with the deterministic text.
func (m *Metrics) IncrLLMFallback(provider string) {
	m.llmFallbacks.WithLabelValues(provider).Inc()
}

// IncrBillWrite counts a bill write with its outcome ("ok" or "error").
func (m *Metrics) IncrBillWrite(operation, status string) {
	m.billWrites.WithLabelValues(operation, status).Inc()
}

// IncrExport counts a rendered report download.
func (m *Metrics) IncrExport(format domain.ExportFormat) {
	m.exports.WithLabelValues(string(format)).Inc()
}

// SummarySnapshot returns the cumulative summary-strategy counters for
// GET /v1/metrics/summaries.
func (m *Metrics) SummarySnapshot() *domain.SummaryMetrics {
	deterministic := getCounterValue(m.summaries, string(domain.SummaryDeterministic))
	llm := getCounterValue(m.summaries, string(domain.SummaryLLM))
	fallbacks := sumCounterVec(m.llmFallbacks)
	hits := getCounterValue(m.cacheHits, "narratives")
	misses := getCounterValue(m.cacheMisses, "narratives")

	fallbackRate := float64(0)
	if attempts := llm + fallbacks; attempts > 0 {
		fallbackRate = fallbacks / attempts
	}
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	return &domain.SummaryMetrics{
		DeterministicSummaries: int64(deterministic),
		LLMSummaries:           int64(llm),
		LLMFallbacks:           int64(fallbacks),
		FallbackRate:           fallbackRate,
		PromptTokens:           int64(getCounterValue(m.tokensUsed, "prompt")),
		CompletionTokens:       int64(getCounterValue(m.tokensUsed, "completion")),
		CacheHitRate:           cacheHitRate,
		Period:                 "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounterVec adds up every child of a CounterVec regardless of labels.
func sumCounterVec(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	total := float64(0)
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			continue
		}
		if m.Counter != nil && m.Counter.Value != nil {
			total += *m.Counter.Value
		}
	}
	return total
}
