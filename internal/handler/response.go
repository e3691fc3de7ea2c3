package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/bookmarket-auth/internal/middleware"
	"github.com/hitoshi/bookmarket-auth/internal/model"
	"github.com/hitoshi/bookmarket-auth/internal/token"
)

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをJSONとして読み込む。失敗時はVALIDATION_ERRORを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("リクエストボディの解析に失敗しました"))
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを統一エラーレスポンスに変換する。
// APIError以外のエラーは詳細をログに残し、INTERNAL_ERRORとして返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// requireClaims はGateが注入したClaimsを取得する。存在しない場合は401を書き込む。
func requireClaims(w http.ResponseWriter, r *http.Request) (*token.Claims, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return nil, false
	}
	return claims, true
}

// authorizeOwnerOrAdmin は対象ユーザー本人または管理者であることを確認する。
func authorizeOwnerOrAdmin(w http.ResponseWriter, r *http.Request, targetUserID string) bool {
	claims, ok := requireClaims(w, r)
	if !ok {
		return false
	}
	if claims.UserID() != targetUserID && claims.Role != model.RoleAdmin {
		middleware.WriteAPIError(w, model.NewForbiddenError())
		return false
	}
	return true
}

// requireAdmin は管理者ロールであることを確認する。
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := requireClaims(w, r)
	if !ok {
		return false
	}
	if claims.Role != model.RoleAdmin {
		middleware.WriteAPIError(w, model.NewForbiddenError())
		return false
	}
	return true
}

// stringPtrOrNil は空文字列をnilに変換する。
func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
