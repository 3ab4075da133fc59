package models

import "time"

// SystemMetrics is a lightweight snapshot of process counters for admins.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CompletionsTotal         uint64    `json:"completions_total"`
	CompletionFailures       uint64    `json:"completion_failures"`
	Fallbacks                uint64    `json:"fallbacks"`
	SummaryRefreshes         uint64    `json:"summary_refreshes"`
	BookkeepingFailures      uint64    `json:"bookkeeping_failures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
