package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookmarket-auth/internal/apikey"
)

// APIKeyServiceInterface はAPIキーハンドラーが必要とするサービスインターフェース。
// 操作対象は常に認証済みユーザー自身のキーに限られる。
type APIKeyServiceInterface interface {
	Create(ctx context.Context, userID string, in apikey.Input) (*apikey.Created, error)
	List(ctx context.Context, userID string) ([]apikey.View, error)
	Get(ctx context.Context, userID, keyID string) (*apikey.View, error)
	Update(ctx context.Context, userID, keyID string, in apikey.Input) (*apikey.View, error)
	Revoke(ctx context.Context, userID, keyID string) error
}

// APIKeyHandler はAPIキー管理のHTTPハンドラー。
type APIKeyHandler struct {
	service APIKeyServiceInterface
}

// NewAPIKeyHandler はAPIKeyHandlerを生成する。
func NewAPIKeyHandler(service APIKeyServiceInterface) *APIKeyHandler {
	return &APIKeyHandler{service: service}
}

type apiKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (req apiKeyRequest) input() apikey.Input {
	return apikey.Input{Name: req.Name, Scopes: req.Scopes, ExpiresAt: req.ExpiresAt}
}

// List はAPIキー一覧を返す。
// GET /api-keys
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	keys, err := h.service.List(r.Context(), claims.UserID())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, keys)
}

// Create はAPIキーを発行する。平文のキーはこのレスポンスでのみ返す。
// POST /api-keys
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req apiKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), claims.UserID(), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, created)
}

// Get はAPIキーを返す。
// GET /api-keys/{id}
func (h *APIKeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	key, err := h.service.Get(r.Context(), claims.UserID(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, key)
}

// Update はAPIキーの名前・スコープ・有効期限を更新する。
// PUT /api-keys/{id}
func (h *APIKeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req apiKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	key, err := h.service.Update(r.Context(), claims.UserID(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, key)
}

// Revoke はAPIキーを削除する。
// POST /api-keys/{id}/revoke
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	if err := h.service.Revoke(r.Context(), claims.UserID(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
