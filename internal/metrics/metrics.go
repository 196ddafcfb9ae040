// Package metrics はリクエスト処理パイプラインのPrometheusメトリクスを提供します。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "minihttpd"

// Stage は接続エラーが発生した処理段階
type Stage string

const (
	StageRead  Stage = "read"
	StageWrite Stage = "write"
	StagePanic Stage = "panic"
)

var (
	registry = prometheus.NewRegistry()

	connectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "accepted_total",
			Help:      "Total number of accepted TCP connections",
		},
	)

	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "active",
			Help:      "Number of connections currently being handled",
		},
	)

	connectionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "errors_total",
			Help:      "Total number of per-connection failures by stage",
		},
		[]string{"stage"},
	)

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of handled requests by resolution kind",
		},
		[]string{"kind"},
	)

	responseBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_bytes_total",
			Help:      "Total bytes written in responses",
		},
	)

	requestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from accepting a connection to finishing its response",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		connectionsAccepted,
		connectionsActive,
		connectionErrors,
		requests,
		responseBytes,
		requestDuration,
	)
}

// ConnectionAccepted は接続の受け付けを記録する
func ConnectionAccepted() {
	connectionsAccepted.Inc()
	connectionsActive.Inc()
}

// ConnectionClosed は接続の終了と処理時間を記録する
func ConnectionClosed(seconds float64) {
	connectionsActive.Dec()
	requestDuration.Observe(seconds)
}

// ConnectionError は接続処理の失敗を記録する
func ConnectionError(stage Stage) {
	connectionErrors.WithLabelValues(string(stage)).Inc()
}

// RequestHandled はリクエストの解決元と書き込んだバイト数を記録する
func RequestHandled(kind string, bytes int64) {
	requests.WithLabelValues(kind).Inc()
	responseBytes.Add(float64(bytes))
}

// Registry はメトリクスのレジストリを返す
func Registry() *prometheus.Registry {
	return registry
}

// Handler はメトリクスを公開するHTTPハンドラを返す
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
