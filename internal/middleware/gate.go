// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/bookmarket-auth/internal/metrics"
	"github.com/hitoshi/bookmarket-auth/internal/model"
	"github.com/hitoshi/bookmarket-auth/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストに検証済みClaimsを格納するためのキー。
var claimsContextKey = contextKey("claims")

// holderContextKey は前段のミドルウェアへ認証結果を伝えるためのキー。
var holderContextKey = contextKey("claims_holder")

// claimsHolder はGateより前段のミドルウェア（ログ）が認証済みユーザーを参照するための入れ物。
type claimsHolder struct {
	userID string
}

func withClaimsHolder(ctx context.Context, h *claimsHolder) context.Context {
	return context.WithValue(ctx, holderContextKey, h)
}

// Authenticator はベアラートークンを検証し、有効なセッションに紐づくClaimsを返す。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*token.Claims, error)
}

// RejectReason は拒否理由。ログとテストでのみ使用し、レスポンスには出さない。
type RejectReason string

const (
	ReasonMissingHeader   RejectReason = "missing_authorization"
	ReasonMalformedHeader RejectReason = "malformed_authorization"
	ReasonInvalidToken    RejectReason = "invalid_token"
)

// Decision はGateの判定結果。Allowがtrueの場合、公開パスでなければClaimsが設定される。
type Decision struct {
	Allow  bool
	Claims *token.Claims
	Reason RejectReason
	Err    error
}

// publicPaths は認証なしで到達できる完全一致パス。
var publicPaths = []string{"/health", "/ready", "/metrics"}

// publicPrefixes は認証なしで到達できるパスの接頭辞。
var publicPrefixes = []string{"/auth/register", "/auth/login", "/auth/refresh", "/auth/verify"}

// Gate はすべての非公開リクエストにベアラートークンと有効なセッションを要求する。
type Gate struct {
	auth    Authenticator
	metrics metrics.Sink
}

// NewGate はGateを生成する。sinkがnilの場合はメトリクスを記録しない。
func NewGate(auth Authenticator, sink metrics.Sink) *Gate {
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Gate{auth: auth, metrics: sink}
}

// IsPublic はパスが認証不要の許可リストに含まれるかを返す。
func IsPublic(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, p := range publicPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Decide はリクエストを通過させるか拒否するかを判定する。
// レスポンスは書き込まず、セッション参照以外の副作用を持たない。
func (g *Gate) Decide(r *http.Request) Decision {
	if IsPublic(r.URL.Path) {
		return Decision{Allow: true}
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return Decision{Reason: ReasonMissingHeader}
	}

	bearer, ok := BearerToken(header)
	if !ok {
		return Decision{Reason: ReasonMalformedHeader}
	}

	claims, err := g.auth.Authenticate(r.Context(), bearer)
	if err != nil {
		return Decision{Reason: ReasonInvalidToken, Err: err}
	}

	return Decision{Allow: true, Claims: claims}
}

// Middleware はDecideの結果に従ってリクエストを通過させるか、401を返すミドルウェアを返す。
// 拒否理由に関わらず外部に見える結果は同一のUNAUTHORIZEDレスポンスとなる。
func (g *Gate) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Decide(r)
			if !d.Allow {
				g.metrics.RecordGateRejection()
				attrs := []any{
					slog.String("path", r.URL.Path),
					slog.String("reason", string(d.Reason)),
				}
				if d.Err != nil {
					attrs = append(attrs, slog.String("error", d.Err.Error()))
				}
				slog.Debug("request rejected by auth gate", attrs...)
				WriteAPIError(w, model.NewUnauthorizedError())
				return
			}

			if d.Claims != nil {
				if h, ok := r.Context().Value(holderContextKey).(*claimsHolder); ok {
					h.userID = d.Claims.UserID()
				}
				r = r.WithContext(ContextWithClaims(r.Context(), d.Claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken はAuthorizationヘッダーからトークンを取り出す。スキーム名は大文字小文字を区別しない。
func BearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", false
	}
	return tok, true
}

// ClaimsFromContext はリクエストコンテキストから検証済みClaimsを取得する。
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	return claims, ok && claims != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.UserID() == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return claims.UserID(), nil
}

// ContextWithClaims はコンテキストにClaimsを注入する。
func ContextWithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
