package metrics

import (
    "net/http"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    renderRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "tileview",
            Name:      "render_requests_total",
            Help:      "Render requests issued by the viewport scheduler per view",
        },
        []string{"view"},
    )

    renderSkipped = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "tileview",
            Name:      "render_requests_skipped_total",
            Help:      "Patches not requested because they are rendered or in flight",
        },
        []string{"view", "reason"},
    )

    renderResults = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "tileview",
            Name:      "render_results_total",
            Help:      "Render results by reconciliation outcome",
        },
        []string{"view", "result"},
    )

    jobsDropped = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "tileview",
            Name:      "worker_jobs_dropped_total",
            Help:      "Queued render jobs dropped by a worker (squashed, pruned, duplicate)",
        },
        []string{"reason"},
    )

    renderLatency = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "tileview",
            Name:      "worker_render_duration_seconds",
            Help:      "Time to rasterize and encode one tile",
            Buckets:   prometheus.DefBuckets,
        },
    )

    queueDepth = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: "tileview",
            Name:      "worker_queue_depth",
            Help:      "Live render jobs queued per worker",
        },
        []string{"worker"},
    )

    tiles = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: "tileview",
            Name:      "tiles",
            Help:      "Tiles held by a view, current and cached",
        },
        []string{"view", "kind"},
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(renderRequests, renderSkipped, renderResults, jobsDropped, renderLatency, queueDepth, tiles)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncRequests(view string, n int) { renderRequests.WithLabelValues(view).Add(float64(n)) }
func IncSkipped(view, reason string) { renderSkipped.WithLabelValues(view, reason).Inc() }
func IncResult(view, result string)  { renderResults.WithLabelValues(view, result).Inc() }

func IncJobsDropped(reason string, n int) {
    if n <= 0 { return }
    jobsDropped.WithLabelValues(reason).Add(float64(n))
}

func ObserveRender(dur time.Duration) { renderLatency.Observe(dur.Seconds()) }

// SetQueueDepth records the queue depth of worker id of the named pool.
func SetQueueDepth(pool string, id int, v int) {
    queueDepth.WithLabelValues(pool + "/" + strconv.Itoa(id)).Set(float64(v))
}

func SetTiles(view string, current, cached int) {
    tiles.WithLabelValues(view, "current").Set(float64(current))
    tiles.WithLabelValues(view, "cached").Set(float64(cached))
}
