package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// SummaryMetrics is returned by GET /v1/metrics/summaries.
type SummaryMetrics struct {
	DeterministicSummaries int64   `json:"deterministicSummaries"`
	LLMSummaries           int64   `json:"llmSummaries"`
	LLMFallbacks           int64   `json:"llmFallbacks"`
	FallbackRate           float64 `json:"fallbackRate"`
	PromptTokens           int64   `json:"promptTokens"`
	CompletionTokens       int64   `json:"completionTokens"`
	CacheHitRate           float64 `json:"cacheHitRate"`
	Period                 string  `json:"period"`
}
