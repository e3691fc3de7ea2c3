package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/bookmarket-auth/internal/apikey"
	"github.com/hitoshi/bookmarket-auth/internal/auth"
	"github.com/hitoshi/bookmarket-auth/internal/middleware"
	"github.com/hitoshi/bookmarket-auth/internal/model"
	"github.com/hitoshi/bookmarket-auth/internal/token"
	"github.com/hitoshi/bookmarket-auth/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn func(ctx context.Context, in auth.RegisterInput) (*model.UserProfile, error)
	loginFn    func(ctx context.Context, in auth.LoginInput) (*auth.TokenPair, error)
	refreshFn  func(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	logoutFn   func(ctx context.Context, bearerToken string) error
	verifyFn   func(ctx context.Context, token string) (*model.UserProfile, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.UserProfile, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, in auth.LoginInput) (*auth.TokenPair, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, bearerToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, bearerToken)
	}
	return nil
}

func (m *mockAuthService) Verify(ctx context.Context, tok string) (*model.UserProfile, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, tok)
	}
	return nil, nil
}

type mockUserService struct {
	getProfileFn    func(ctx context.Context, userID string) (*model.UserProfile, error)
	updateProfileFn func(ctx context.Context, userID string, in user.ProfileUpdate) (*model.UserProfile, error)
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return &model.UserProfile{ID: userID}, nil
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, in user.ProfileUpdate) (*model.UserProfile, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in)
	}
	return &model.UserProfile{ID: userID}, nil
}

type mockPasswordChanger struct {
	changePasswordFn func(ctx context.Context, userID, currentPassword, newPassword string) error
}

func (m *mockPasswordChanger) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, userID, currentPassword, newPassword)
	}
	return nil
}

type mockAPIKeyService struct {
	createFn func(ctx context.Context, userID string, in apikey.Input) (*apikey.Created, error)
	listFn   func(ctx context.Context, userID string) ([]apikey.View, error)
	getFn    func(ctx context.Context, userID, keyID string) (*apikey.View, error)
	updateFn func(ctx context.Context, userID, keyID string, in apikey.Input) (*apikey.View, error)
	revokeFn func(ctx context.Context, userID, keyID string) error
}

func (m *mockAPIKeyService) Create(ctx context.Context, userID string, in apikey.Input) (*apikey.Created, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return nil, nil
}

func (m *mockAPIKeyService) List(ctx context.Context, userID string) ([]apikey.View, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []apikey.View{}, nil
}

func (m *mockAPIKeyService) Get(ctx context.Context, userID, keyID string) (*apikey.View, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, keyID)
	}
	return nil, nil
}

func (m *mockAPIKeyService) Update(ctx context.Context, userID, keyID string, in apikey.Input) (*apikey.View, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, keyID, in)
	}
	return nil, nil
}

func (m *mockAPIKeyService) Revoke(ctx context.Context, userID, keyID string) error {
	if m.revokeFn != nil {
		return m.revokeFn(ctx, userID, keyID)
	}
	return nil
}

type mockAccountAdmin struct {
	suspendFn  func(ctx context.Context, userID string) error
	activateFn func(ctx context.Context, userID string) error
}

func (m *mockAccountAdmin) Suspend(ctx context.Context, userID string) error {
	if m.suspendFn != nil {
		return m.suspendFn(ctx, userID)
	}
	return nil
}

func (m *mockAccountAdmin) Activate(ctx context.Context, userID string) error {
	if m.activateFn != nil {
		return m.activateFn(ctx, userID)
	}
	return nil
}

// --- リクエストヘルパー ---

// withClaims はGateを通過した状態のリクエストを作る。
func withClaims(r *http.Request, userID string, role model.Role) *http.Request {
	claims := &token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID, ID: "session-" + userID},
		Email:            userID + "@example.com",
		Role:             role,
	}
	return r.WithContext(middleware.ContextWithClaims(r.Context(), claims))
}

// withURLParam はchiのURLパラメータを設定する。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
