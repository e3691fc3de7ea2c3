// Package token は署名付きベアラートークン（アクセス/リフレッシュ）の発行と検証を提供する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/bookmarket-auth/internal/model"
)

var (
	// ErrInvalidSignature は署名の改ざん・不一致、または想定外の署名アルゴリズムを表す。
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired は正しく署名されているが有効期限を過ぎたトークンを表す。
	ErrExpired = errors.New("token expired")
	// ErrMalformed は構造的に不正なトークンを表す。
	ErrMalformed = errors.New("malformed token")
	// ErrInvalidTTL は0以下の有効期間で発行しようとした場合のエラー。
	ErrInvalidTTL = errors.New("token ttl must be positive")
)

// Claims はトークンのペイロード。
// Subjectはユーザー、IDはトークンを認可したセッションのIDを表す。
type Claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	jwt.RegisteredClaims
}

// NewClaims はユーザーとセッションからClaimsを組み立てる。iat/expはIssueで設定される。
func NewClaims(user *model.User, sessionID string) Claims {
	return Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.ID,
			ID:      sessionID,
		},
	}
}

// UserID はsubクレームを返す。
func (c *Claims) UserID() string { return c.Subject }

// SessionID はjtiクレームを返す。
func (c *Claims) SessionID() string { return c.ID }

// Codec は共有秘密鍵を使ったHS256でトークンを署名・検証する。
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option はCodecの設定を変更する。
type Option func(*Codec)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec はCodecを生成する。
func NewCodec(secret string, opts ...Option) *Codec {
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue はiat=now、exp=now+ttlを設定してトークンに署名する。
// ttlが0以下の場合はErrInvalidTTLを返す。
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}

	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify は署名と時刻系クレームを検証し、Claimsを返す。
// jwt/v5は署名検証をクレーム検証より先に行うため、正しく署名された期限切れトークンは
// ErrInvalidSignatureではなくErrExpiredとなる。
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrMalformed
	}

	return claims, nil
}

// classify はjwtライブラリのエラーをパッケージのエラー分類に変換する。
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
