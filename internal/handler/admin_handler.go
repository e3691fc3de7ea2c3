package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AccountAdmin は管理者によるアカウント状態の変更を行う。
type AccountAdmin interface {
	Suspend(ctx context.Context, userID string) error
	Activate(ctx context.Context, userID string) error
}

// AdminHandler は管理者向けのHTTPハンドラー。adminロールのみ許可する。
type AdminHandler struct {
	accounts AccountAdmin
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(accounts AccountAdmin) *AdminHandler {
	return &AdminHandler{accounts: accounts}
}

// Suspend はユーザーを停止し、全セッションを取り消す。
// POST /admin/users/{id}/suspend
func (h *AdminHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.accounts.Suspend)
}

// Activate はユーザーをactiveに戻す。
// POST /admin/users/{id}/activate
func (h *AdminHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.accounts.Activate)
}

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, string) error) {
	if !requireAdmin(w, r) {
		return
	}

	if err := apply(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
