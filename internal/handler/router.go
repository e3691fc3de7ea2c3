package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookmarket-auth/internal/middleware"
	"github.com/hitoshi/bookmarket-auth/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Gate              *middleware.Gate
	RateLimiter       *middleware.RateLimiter
	TrustedProxies    *middleware.TrustedProxies
	CORSAllowedOrigin string
	Logging           func(http.Handler) http.Handler

	// 公開エンドポイント
	Health  *HealthHandler
	Metrics http.Handler

	// 認証
	AuthService AuthServiceInterface

	// ユーザー
	UserService     UserServiceInterface
	PasswordChanger PasswordChanger

	// APIキー
	APIKeyService APIKeyServiceInterface

	// 管理者
	AccountAdmin AccountAdmin
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → ClientIP → SecurityHeaders → CORS → Logging → AuthGate → RateLimit
//
// 公開パスの判定はAuthGateの許可リストで行うため、全ルートを同じチェーンに載せる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(deps.TrustedProxies.Middleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logging != nil {
		r.Use(deps.Logging)
	}
	r.Use(deps.Gate.Middleware())
	r.Use(deps.RateLimiter.Middleware())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteAPIError(w, model.NewNotFoundError("リソース"))
	})

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService, deps.PasswordChanger)
	apiKeyHandler := NewAPIKeyHandler(deps.APIKeyService)
	adminHandler := NewAdminHandler(deps.AccountAdmin)

	// --- 公開エンドポイント ---
	r.Get("/health", deps.Health.Health)
	r.Get("/ready", deps.Health.Ready)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Get("/verify", authHandler.Verify)

		// ベアラートークン必須
		r.Post("/logout", authHandler.Logout)
	})

	// --- 認証が必要なルート ---
	r.Route("/users/{id}", func(r chi.Router) {
		r.Get("/", userHandler.GetUser)
		r.Put("/", userHandler.UpdateUser)
		r.Put("/password", userHandler.ChangePassword)
	})

	r.Route("/api-keys", func(r chi.Router) {
		r.Get("/", apiKeyHandler.List)
		r.Post("/", apiKeyHandler.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", apiKeyHandler.Get)
			r.Put("/", apiKeyHandler.Update)
			r.Post("/revoke", apiKeyHandler.Revoke)
		})
	})

	r.Route("/admin/users/{id}", func(r chi.Router) {
		r.Post("/suspend", adminHandler.Suspend)
		r.Post("/activate", adminHandler.Activate)
	})

	return r
}
