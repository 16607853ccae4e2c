package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territory_requests_total",
		Help: "Total HTTP requests by route and status code",
	}, []string{"route", "code"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "territory_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"route"})
	CapturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territory_captures_total",
		Help: "Total capture operations by method",
	}, []string{"method"})
	CellsAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territory_cells_applied_total",
		Help: "Total cells written by method",
	}, []string{"method"})
	ConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "territory_conflicts_total",
		Help: "Total cells taken over from another owner",
	})
	ShardCommitDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "territory_shard_commit_duration_ms",
		Help:    "Per-shard read-modify-write duration in milliseconds",
		Buckets: msBuckets,
	})
	ShardRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "territory_shard_retries_total",
		Help: "Total shard commit retries after version conflicts",
	})
	PersistenceFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territory_persistence_failures_total",
		Help: "Total storage failures by operation",
	}, []string{"op"})
	RasterizeDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "territory_rasterize_duration_ms",
		Help:    "Path rasterization duration in milliseconds by path type",
		Buckets: msBuckets,
	}, []string{"path_type"})
	ViewportRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "territory_viewport_requests_total",
		Help: "Total viewport queries",
	})
	ViewportRegions = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "territory_viewport_regions",
		Help:    "Covering regions per viewport query",
		Buckets: []float64{1, 2, 4, 8, 16, 64, 256, 1024},
	})
	StatsFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "territory_stats_failures_total",
		Help: "Total profile statistics updates that failed after commit",
	})
	ReplayHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "territory_replay_hits_total",
		Help: "Total events skipped as already applied",
	})
	ShardCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "territory_shard_cache_hits_total",
		Help: "Total shard cache hits",
	})
	ShardCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "territory_shard_cache_misses_total",
		Help: "Total shard cache misses",
	})
	EventsConsumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "territory_events_consumed_total",
		Help: "Stream events handled by outcome",
	}, []string{"outcome"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "territory_rate_limited_total",
		Help: "Total requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(CapturesTotal)
	prometheus.MustRegister(CellsAppliedTotal)
	prometheus.MustRegister(ConflictsTotal)
	prometheus.MustRegister(ShardCommitDurationMs)
	prometheus.MustRegister(ShardRetriesTotal)
	prometheus.MustRegister(PersistenceFailuresTotal)
	prometheus.MustRegister(RasterizeDurationMs)
	prometheus.MustRegister(ViewportRequestsTotal)
	prometheus.MustRegister(ViewportRegions)
	prometheus.MustRegister(StatsFailuresTotal)
	prometheus.MustRegister(ReplayHitsTotal)
	prometheus.MustRegister(ShardCacheHitsTotal)
	prometheus.MustRegister(ShardCacheMissesTotal)
	prometheus.MustRegister(EventsConsumedTotal)
	prometheus.MustRegister(RateLimitedTotal)
}

// Handler：暴露已注册指标，主入口挂载到 /metrics
func Handler() http.Handler { return promhttp.Handler() }
