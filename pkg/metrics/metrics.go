package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TileFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileanim_tile_fetches_total",
		Help: "Total number of tile image fetches by result",
	}, []string{"result"})

	TileFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tileanim_tile_fetch_latency_seconds",
		Help:    "Latency of tile image fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	FramesLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileanim_frames_loaded_total",
		Help: "Total number of animation frames whose tiles were all attempted",
	})

	Batches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileanim_batches_total",
		Help: "Total number of fetch batches by result",
	}, []string{"result"})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileanim_state_transitions_total",
		Help: "Total number of animation state transitions",
	}, []string{"from", "to"})

	StaticCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileanim_static_cache_hits_total",
		Help: "Total number of static tile cache hits",
	})

	StaticCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileanim_static_cache_misses_total",
		Help: "Total number of static tile cache misses",
	})

	FetchCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileanim_fetch_cache_hits_total",
		Help: "Total number of fetch cache hits",
	})

	FetchCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tileanim_fetch_cache_misses_total",
		Help: "Total number of fetch cache misses",
	})

	WorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tileanim_workers_busy",
		Help: "Number of fetch worker slots currently in use",
	})
)

var (
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Total number of Redis errors",
	}, []string{"operation"})
)
