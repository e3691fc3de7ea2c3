package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/bookmarket-auth/internal/model"
	"github.com/hitoshi/bookmarket-auth/internal/token"
)

// mockAuthenticator はテスト用のAuthenticator。
type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, token string) (*token.Claims, error)
	calls          []string
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, tok string) (*token.Claims, error) {
	m.calls = append(m.calls, tok)
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, tok)
	}
	return nil, errors.New("not configured")
}

// acceptToken は指定トークンのみを受け付けるAuthenticatorを返す。
func acceptToken(valid, userID string) *mockAuthenticator {
	return &mockAuthenticator{
		authenticateFn: func(ctx context.Context, tok string) (*token.Claims, error) {
			if tok != valid {
				return nil, model.NewUnauthorizedError()
			}
			return testClaims(userID), nil
		},
	}
}

func testClaims(userID string) *token.Claims {
	return &token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID, ID: "session-" + userID},
		Email:            userID + "@example.com",
		Role:             model.RoleCustomer,
	}
}

// countingSink はゲート拒否とリクエスト観測の回数を数える。
type countingSink struct {
	mu         sync.Mutex
	rejections int
	observed   int
}

func (s *countingSink) RecordLogin(bool) {}
func (s *countingSink) RecordTokenRefresh() {}
func (s *countingSink) RecordLogout() {}
func (s *countingSink) RecordSessionsRevoked(int64) {}
func (s *countingSink) RecordSessionsSwept(int64) {}
func (s *countingSink) SetActiveSessions(int64) {}

func (s *countingSink) RecordGateRejection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections++
}

func (s *countingSink) ObserveRequest(time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed++
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})
