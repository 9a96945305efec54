// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordPollSuccess(feedID string)
	RecordPollFailure(feedID string, reason string)
	RecordPollLatency(duration time.Duration)
	RecordArticlesIngested(count int)
	RecordArticlesSkipped(count int)
	RecordDeliveryCycle(userID string)
	RecordDeliveryFailure(userID string)
	RecordArticlesDelivered(count int)
	RecordProcessingDegraded(op string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	pollSuccess        prometheus.Counter
	pollFail           *prometheus.CounterVec
	pollLatency        prometheus.Histogram
	articlesIngested   prometheus.Counter
	articlesSkipped    prometheus.Counter
	deliveryCycles     prometheus.Counter
	deliveryFailures   prometheus.Counter
	articlesDelivered  prometheus.Counter
	processingDegraded *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pollSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsbot_poll_success_total",
			Help: "フィードポーリング成功の合計数",
		}),
		pollFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsbot_poll_fail_total",
			Help: "フィードポーリング失敗の合計数（理由別）",
		}, []string{"reason"}),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsbot_poll_latency_seconds",
			Help:    "フィードポーリングのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		articlesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsbot_articles_ingested_total",
			Help: "新規保存された記事の合計数",
		}),
		articlesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsbot_articles_skipped_total",
			Help: "重複としてスキップされた記事の合計数",
		}),
		deliveryCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsbot_delivery_cycles_total",
			Help: "実行された配信サイクルの合計数",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsbot_delivery_failures_total",
			Help: "失敗した配信サイクルの合計数",
		}),
		articlesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsbot_articles_delivered_total",
			Help: "配信された記事の合計数",
		}),
		processingDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsbot_processing_degraded_total",
			Help: "LLM処理の失敗により原文で配信された回数（処理種別ごと）",
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.pollSuccess,
		c.pollFail,
		c.pollLatency,
		c.articlesIngested,
		c.articlesSkipped,
		c.deliveryCycles,
		c.deliveryFailures,
		c.articlesDelivered,
		c.processingDegraded,
	)

	return c
}

// RecordPollSuccess はポーリング成功を記録する。
func (c *Collector) RecordPollSuccess(feedID string) {
	c.pollSuccess.Inc()
}

// RecordPollFailure はポーリング失敗を理由付きで記録する。
func (c *Collector) RecordPollFailure(feedID string, reason string) {
	c.pollFail.WithLabelValues(reason).Inc()
}

// RecordPollLatency はポーリングのレイテンシを記録する。
func (c *Collector) RecordPollLatency(duration time.Duration) {
	c.pollLatency.Observe(duration.Seconds())
}

// RecordArticlesIngested は新規保存された記事数を記録する。
func (c *Collector) RecordArticlesIngested(count int) {
	c.articlesIngested.Add(float64(count))
}

// RecordArticlesSkipped は重複スキップされた記事数を記録する。
func (c *Collector) RecordArticlesSkipped(count int) {
	c.articlesSkipped.Add(float64(count))
}

// RecordDeliveryCycle は配信サイクルの実行を記録する。
func (c *Collector) RecordDeliveryCycle(userID string) {
	c.deliveryCycles.Inc()
}

// RecordDeliveryFailure は配信サイクルの失敗を記録する。
func (c *Collector) RecordDeliveryFailure(userID string) {
	c.deliveryFailures.Inc()
}

// RecordArticlesDelivered は配信された記事数を記録する。
func (c *Collector) RecordArticlesDelivered(count int) {
	c.articlesDelivered.Add(float64(count))
}

// RecordProcessingDegraded はLLM処理の失敗による原文配信を記録する。
func (c *Collector) RecordProcessingDegraded(op string) {
	c.processingDegraded.WithLabelValues(op).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
