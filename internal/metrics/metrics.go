// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// チャット基盤やミドルウェアから利用する。
type MetricsCollector interface {
	RecordSessionJoined()
	RecordSessionLeft()
	RecordMessagePersisted()
	RecordPersistFailure()
	RecordMessageDropped(reason string)
	RecordBroadcastDeliveries(count int)
	RecordConnectionRejected(reason string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionsConnected   prometheus.Gauge
	messagesPersisted   prometheus.Counter
	persistFail         prometheus.Counter
	messagesDropped     *prometheus.CounterVec
	broadcastDeliveries prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	httpStatus          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomsync_chat_sessions_connected",
			Help: "現在接続中のチャットセッション数",
		}),
		messagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomsync_chat_messages_persisted_total",
			Help: "永続化に成功したチャットメッセージの合計数",
		}),
		persistFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomsync_chat_persist_fail_total",
			Help: "チャットメッセージ永続化失敗の合計数",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomsync_chat_messages_dropped_total",
			Help: "破棄された受信フレームの理由別合計数",
		}, []string{"reason"}),
		broadcastDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomsync_chat_broadcast_deliveries_total",
			Help: "ブロードキャストで配送されたメッセージの合計数",
		}),
		connectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomsync_chat_connections_rejected_total",
			Help: "アップグレード前に拒否されたWebSocket接続の理由別合計数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomsync_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.sessionsConnected,
		c.messagesPersisted,
		c.persistFail,
		c.messagesDropped,
		c.broadcastDeliveries,
		c.connectionsRejected,
		c.httpStatus,
	)

	return c
}

// RecordSessionJoined はチャットセッションの参加を記録する。
func (c *Collector) RecordSessionJoined() {
	c.sessionsConnected.Inc()
}

// RecordSessionLeft はチャットセッションの離脱を記録する。
func (c *Collector) RecordSessionLeft() {
	c.sessionsConnected.Dec()
}

// RecordMessagePersisted はメッセージ永続化の成功を記録する。
func (c *Collector) RecordMessagePersisted() {
	c.messagesPersisted.Inc()
}

// RecordPersistFailure はメッセージ永続化の失敗を記録する。
func (c *Collector) RecordPersistFailure() {
	c.persistFail.Inc()
}

// RecordMessageDropped は受信フレームの破棄を理由付きで記録する。
func (c *Collector) RecordMessageDropped(reason string) {
	c.messagesDropped.WithLabelValues(reason).Inc()
}

// RecordBroadcastDeliveries はブロードキャストの配送数を記録する。
func (c *Collector) RecordBroadcastDeliveries(count int) {
	c.broadcastDeliveries.Add(float64(count))
}

// RecordConnectionRejected はアップグレード前の接続拒否を理由付きで記録する。
func (c *Collector) RecordConnectionRejected(reason string) {
	c.connectionsRejected.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
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
