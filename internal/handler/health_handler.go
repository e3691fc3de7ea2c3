package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/bookmarket-auth/internal/logger"
	"github.com/redis/go-redis/v9"
)

// readyTimeout は依存先1件あたりの疎通確認のタイムアウト。
const readyTimeout = 2 * time.Second

// ReadinessCheck は依存先1件の疎通確認。
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// ContextPinger はPingContextを持つ接続（*sql.DBなど）。
type ContextPinger interface {
	PingContext(ctx context.Context) error
}

// DatabaseCheck はデータベース接続の疎通確認を生成する。
func DatabaseCheck(db ContextPinger) ReadinessCheck {
	return ReadinessCheck{Name: "database", Ping: db.PingContext}
}

// RedisCheck はRedisへのPINGによる疎通確認を生成する。
func RedisCheck(client *redis.Client) ReadinessCheck {
	return ReadinessCheck{
		Name: "redis",
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// HealthHandler は死活監視と準備完了確認のHTTPハンドラー。
type HealthHandler struct {
	checks []ReadinessCheck
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health はプロセスの生存を返す。依存先は確認しない。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: logger.ServiceName})
}

// Ready は全依存先の疎通を確認する。1件でも失敗すれば503。
// GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := c.Ping(ctx)
		cancel()

		if err != nil {
			resp.Checks[c.Name] = "unavailable"
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	writeJSON(w, status, resp)
}
