// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink は認証サブシステムが発行するメトリクスの受け口。
// サービス生成時に注入し、グローバルなレジストリには依存しない。
type Sink interface {
	RecordLogin(success bool)
	RecordTokenRefresh()
	RecordLogout()
	RecordGateRejection()
	RecordSessionsRevoked(n int64)
	RecordSessionsSwept(n int64)
	ObserveRequest(duration time.Duration)
	SetActiveSessions(n int64)
}

// Collector はPrometheusメトリクスを収集するSinkの実装。
type Collector struct {
	logins          *prometheus.CounterVec
	refreshes       prometheus.Counter
	logouts         prometheus.Counter
	gateRejections  prometheus.Counter
	sessionsRevoked prometheus.Counter
	sessionsSwept   prometheus.Counter
	requestLatency  prometheus.Histogram
	activeSessions  prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "ログイン試行の合計数（結果別）",
		}, []string{"result"}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_token_refreshes_total",
			Help: "トークンリフレッシュ成功の合計数",
		}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_logouts_total",
			Help: "ログアウトの合計数",
		}),
		gateRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_gate_rejections_total",
			Help: "認証ミドルウェアが拒否したリクエストの合計数",
		}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_revoked_total",
			Help: "一括取り消しで削除されたセッションの合計数",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_sessions_swept_total",
			Help: "期限切れスイープで削除されたセッションの合計数",
		}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auth_http_request_duration_seconds",
			Help:    "HTTPリクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auth_active_sessions",
			Help: "有効期限内のセッション数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.refreshes,
		c.logouts,
		c.gateRejections,
		c.sessionsRevoked,
		c.sessionsSwept,
		c.requestLatency,
		c.activeSessions,
	)

	return c
}

// RecordLogin はログイン試行を結果別に記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordTokenRefresh はトークンリフレッシュを記録する。
func (c *Collector) RecordTokenRefresh() {
	c.refreshes.Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logouts.Inc()
}

// RecordGateRejection は認証ミドルウェアによる拒否を記録する。
func (c *Collector) RecordGateRejection() {
	c.gateRejections.Inc()
}

// RecordSessionsRevoked は一括取り消しされたセッション数を加算する。
func (c *Collector) RecordSessionsRevoked(n int64) {
	c.sessionsRevoked.Add(float64(n))
}

// RecordSessionsSwept はスイープで削除されたセッション数を加算する。
func (c *Collector) RecordSessionsSwept(n int64) {
	c.sessionsSwept.Add(float64(n))
}

// ObserveRequest はリクエスト処理時間を記録する。
func (c *Collector) ObserveRequest(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// SetActiveSessions は有効セッション数を設定する。
func (c *Collector) SetActiveSessions(n int64) {
	c.activeSessions.Set(float64(n))
}

// Nop は何も記録しないSink。
type Nop struct{}

func (Nop) RecordLogin(bool) {}
func (Nop) RecordTokenRefresh() {}
func (Nop) RecordLogout() {}
func (Nop) RecordGateRejection() {}
func (Nop) RecordSessionsRevoked(int64) {}
func (Nop) RecordSessionsSwept(int64) {}
func (Nop) ObserveRequest(time.Duration) {}
func (Nop) SetActiveSessions(int64) {}

// ActiveSessionCounter は有効セッション数を数える。
type ActiveSessionCounter func(ctx context.Context) (int64, error)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// countが指定された場合、スクレイプごとに有効セッション数のゲージを更新する。
// 数え上げに失敗した場合は直前の値のまま公開する。
func Handler(gatherer prometheus.Gatherer, sink Sink, count ActiveSessionCounter) http.Handler {
	h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	if count == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n, err := count(r.Context()); err == nil {
			sink.SetActiveSessions(n)
		}
		h.ServeHTTP(w, r)
	})
}

// compile-time interface check
var (
	_ Sink = (*Collector)(nil)
	_ Sink = Nop{}
)
