// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// webhookディスパッチャ・相関処理・招待送信から利用する。
type MetricsCollector interface {
	RecordNotification(resourceState string)
	RecordCorrelation(outcome string)
	RecordDeltas(count int)
	RecordUpstreamLatency(duration time.Duration)
	RecordInviteSent()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	notifications   *prometheus.CounterVec
	correlations    *prometheus.CounterVec
	deltas          prometheus.Counter
	upstreamLatency prometheus.Histogram
	invitesSent     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_notifications_total",
			Help: "受信したプッシュ通知のresource_state別合計数",
		}, []string{"resource_state"}),
		correlations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookman_correlations_total",
			Help: "通知相関処理の結果別合計数",
		}, []string{"outcome"}),
		deltas: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_rsvp_deltas_total",
			Help: "出力されたRSVP状態デルタの合計数",
		}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookman_upstream_fetch_latency_seconds",
			Help:    "Google Calendar APIからのイベント取得レイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		invitesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookman_invites_sent_total",
			Help: "送信した招待メールの合計数",
		}),
	}

	reg.MustRegister(
		c.notifications,
		c.correlations,
		c.deltas,
		c.upstreamLatency,
		c.invitesSent,
	)

	return c
}

// RecordNotification は通知受信をresource_state別に記録する。
func (c *Collector) RecordNotification(resourceState string) {
	c.notifications.WithLabelValues(resourceState).Inc()
}

// RecordCorrelation は相関処理の結果を記録する。
func (c *Collector) RecordCorrelation(outcome string) {
	c.correlations.WithLabelValues(outcome).Inc()
}

// RecordDeltas は出力したRSVPデルタ数を記録する。
func (c *Collector) RecordDeltas(count int) {
	c.deltas.Add(float64(count))
}

// RecordUpstreamLatency はイベント取得のレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(duration time.Duration) {
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordInviteSent は招待メール送信を記録する。
func (c *Collector) RecordInviteSent() {
	c.invitesSent.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
