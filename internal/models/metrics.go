package models

import (
	"time"

	"github.com/noah-isme/attendance-dashboard-api/pkg/jobs"
)

// SystemMetrics is a point-in-time summary of the process counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	LogDataErrors            uint64    `json:"log_data_errors"`
	StaleResponses           uint64    `json:"stale_responses"`
	Goroutines               int                   `json:"goroutines"`
	Queues                   map[string]jobs.Stats `json:"queues,omitempty"`
	GeneratedAt              time.Time             `json:"generated_at"`
}
