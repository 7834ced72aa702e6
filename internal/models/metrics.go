package models

import "time"

// SystemMetrics is the JSON summary served next to the Prometheus endpoint.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"rollup_cache_hits"`
	CacheMisses              uint64    `json:"rollup_cache_misses"`
	CacheHitRatio            float64   `json:"rollup_cache_hit_ratio"`
	DBQueryCount             uint64    `json:"rollup_loads"`
	AverageDBQueryDurationMs float64   `json:"average_rollup_load_ms"`
	ScoresWritten            uint64    `json:"scores_written"`
	FinalOverrideChanges     uint64    `json:"final_override_changes"`
	ToolCalls                uint64    `json:"assistant_tool_calls"`
	ReportsGenerated         uint64    `json:"reports_generated"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
