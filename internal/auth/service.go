// Package auth は登録・ログイン・トークン更新・ログアウト・検証と
// セッションの一括取り消しを伴うアカウント操作を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bookmarket-auth/internal/metrics"
	"github.com/hitoshi/bookmarket-auth/internal/model"
	"github.com/hitoshi/bookmarket-auth/internal/repository"
	"github.com/hitoshi/bookmarket-auth/internal/security"
	"github.com/hitoshi/bookmarket-auth/internal/session"
	"github.com/hitoshi/bookmarket-auth/internal/token"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	PasswordMinLength int
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
	Role      model.Role // 空の場合はcustomer
}

// LoginInput はログインの入力。
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	UserAgent  *string
	IPAddress  *string
}

// TokenPair はログイン・リフレッシュの結果。
// アクセストークンとリフレッシュトークンは同じセッションIDをjtiに持つ。
type TokenPair struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	ExpiresIn    int64              `json:"expires_in"`
	User         *model.UserProfile `json:"user"`
}

// PasswordHasher はパスワードのハッシュ化と照合を行う。
// security.CredentialHasherが実装する。
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) (bool, error)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	sessions *session.Store
	hasher   PasswordHasher
	codec    *token.Codec
	metrics  metrics.Sink
	config   ServiceConfig
	now      func() time.Time

	// 未登録メールアドレスの照合に使うハッシュ。応答時間からアカウントの存在を推測させない
	dummyHash string
}

// NewService はServiceを生成する。sinkがnilの場合はメトリクスを記録しない。
// 照合用のダミーハッシュを生成できない場合はエラーを返す。
func NewService(
	userRepo repository.UserRepository,
	sessions *session.Store,
	hasher PasswordHasher,
	codec *token.Codec,
	sink metrics.Sink,
	config ServiceConfig,
) (*Service, error) {
	if sink == nil {
		sink = metrics.Nop{}
	}
	dummyHash, err := hasher.HashPassword(uuid.New().String())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy password hash: %w", err)
	}
	return &Service{
		userRepo:  userRepo,
		sessions:  sessions,
		hasher:    hasher,
		codec:     codec,
		metrics:   sink,
		config:    config,
		now:       time.Now,
		dummyHash: dummyHash,
	}, nil
}

// Register はユーザーを登録する。
// adminロールは自己申告できない。メールアドレスが重複する場合はConflictを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.UserProfile, error) {
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := s.validatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := ValidateName("名", in.FirstName); err != nil {
		return nil, err
	}
	if err := ValidateName("姓", in.LastName); err != nil {
		return nil, err
	}
	if in.Phone != nil {
		if err := ValidatePhone(*in.Phone); err != nil {
			return nil, err
		}
	}

	role := in.Role
	if role == "" {
		role = model.RoleCustomer
	}
	if !role.Valid() || role == model.RoleAdmin {
		return nil, model.NewValidationError("指定できないロールです")
	}

	existing, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, internalError("find user by email", err)
	}
	if existing != nil {
		return nil, model.NewConflictError("このメールアドレスは既に登録されています。")
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    &in.FirstName,
		LastName:     &in.LastName,
		Phone:        in.Phone,
		Role:         role,
		Status:       model.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// 同時登録で一意制約に当たった場合
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewConflictError("このメールアドレスは既に登録されています。")
		}
		return nil, internalError("create user", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user.Profile(), nil
}

// Login は資格情報を検証し、セッションを作成してトークンペアを発行する。
// 未登録のメールアドレスとパスワード不一致は同一のUnauthorizedを返す。
// 資格情報が正しくても状態がactiveでなければForbiddenを返す。
func (s *Service) Login(ctx context.Context, in LoginInput) (*TokenPair, error) {
	if in.Email == "" || in.Password == "" {
		return nil, model.NewValidationError("メールアドレスとパスワードは必須です")
	}

	user, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, internalError("find user by email", err)
	}

	hash := s.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	ok, err := s.hasher.VerifyPassword(in.Password, hash)
	if err != nil {
		return nil, internalError("verify password", err)
	}
	if user == nil || !ok {
		s.metrics.RecordLogin(false)
		return nil, model.NewUnauthorizedError()
	}

	if user.Status != model.StatusActive {
		s.metrics.RecordLogin(false)
		return nil, model.NewForbiddenError()
	}

	sess, err := s.sessions.Create(ctx, user.ID, in.UserAgent, in.IPAddress, in.RememberMe)
	if err != nil {
		return nil, internalError("create session", err)
	}

	pair, err := s.issuePair(user, sess.ID)
	if err != nil {
		s.discardSession(ctx, sess.ID)
		return nil, err
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		s.discardSession(ctx, sess.ID)
		return nil, internalError("update last login", err)
	}

	s.metrics.RecordLogin(true)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("session_id", sess.ID),
		slog.Bool("remember_me", in.RememberMe),
	)
	return pair, nil
}

// Refresh はリフレッシュトークンを検証し、同じセッションIDで新しいトークンペアを発行する。
// セッションIDはローテーションしないため、漏洩したリフレッシュトークンは
// セッションの有効期限まで使用可能なままとなる。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken)
	if err != nil {
		return nil, mapTokenError(err)
	}

	user, sess, err := s.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}

	pair, err := s.issuePair(user, sess.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTokenRefresh()
	return pair, nil
}

// Logout はトークンのjtiが指すセッションを削除する。
// 同じセッションに紐づくアクセス・リフレッシュトークンはいずれも無効になる。
func (s *Service) Logout(ctx context.Context, bearerToken string) error {
	if bearerToken == "" {
		return model.NewUnauthorizedError()
	}

	claims, err := s.codec.Verify(bearerToken)
	if err != nil {
		return mapTokenError(err)
	}

	if err := s.sessions.Delete(ctx, claims.SessionID()); err != nil {
		return internalError("delete session", err)
	}

	s.metrics.RecordLogout()
	slog.Info("user logged out",
		slog.String("user_id", claims.UserID()),
		slog.String("session_id", claims.SessionID()),
	)
	return nil
}

// Verify はトークンとセッションの有効性を確認し、ユーザーのプロフィールを返す。
func (s *Service) Verify(ctx context.Context, tokenString string) (*model.UserProfile, error) {
	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		return nil, mapTokenError(err)
	}

	user, _, err := s.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// Authenticate はトークンをデコードし、jtiのセッションが有効であることを確認してClaimsを返す。
// 認証ミドルウェアから呼ばれる。ユーザーの参照は行わない。
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*token.Claims, error) {
	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		return nil, mapTokenError(err)
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID())
	if err != nil {
		return nil, mapSessionError(err)
	}
	if sess.UserID != claims.UserID() {
		return nil, model.NewUnauthorizedError()
	}
	return claims, nil
}

// ChangePassword は現在のパスワードを再検証してから新しいパスワードを保存し、
// ユーザーの全セッションを削除する。
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return internalError("find user", err)
	}
	if user == nil {
		return model.NewNotFoundError("ユーザー")
	}

	ok, err := s.hasher.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil {
		return internalError("verify password", err)
	}
	if !ok {
		return model.NewValidationError("現在のパスワードが正しくありません")
	}

	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return internalError("hash password", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, userID, hash); err != nil {
		return internalError("update password", err)
	}

	n, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return internalError("revoke sessions", err)
	}
	s.metrics.RecordSessionsRevoked(n)

	slog.Info("password changed",
		slog.String("user_id", userID),
		slog.Int64("sessions_revoked", n),
	)
	return nil
}

// Suspend はユーザーを停止状態にし、全セッションを削除する。
func (s *Service) Suspend(ctx context.Context, userID string) error {
	if err := s.setStatus(ctx, userID, model.StatusSuspended); err != nil {
		return err
	}

	n, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return internalError("revoke sessions", err)
	}
	s.metrics.RecordSessionsRevoked(n)

	slog.Info("user suspended",
		slog.String("user_id", userID),
		slog.Int64("sessions_revoked", n),
	)
	return nil
}

// Activate はユーザーをactive状態に戻す。
func (s *Service) Activate(ctx context.Context, userID string) error {
	if err := s.setStatus(ctx, userID, model.StatusActive); err != nil {
		return err
	}
	slog.Info("user activated", slog.String("user_id", userID))
	return nil
}

func (s *Service) setStatus(ctx context.Context, userID string, status model.Status) error {
	ok, err := s.userRepo.UpdateStatus(ctx, userID, status)
	if err != nil {
		return internalError("update user status", err)
	}
	if !ok {
		return model.NewNotFoundError("ユーザー")
	}
	return nil
}

// resolve はClaimsのセッションとユーザーを解決する。いずれかが欠けていればUnauthorized。
func (s *Service) resolve(ctx context.Context, claims *token.Claims) (*model.User, *model.Session, error) {
	sess, err := s.sessions.Get(ctx, claims.SessionID())
	if err != nil {
		return nil, nil, mapSessionError(err)
	}
	if sess.UserID != claims.UserID() {
		return nil, nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID())
	if err != nil {
		return nil, nil, internalError("find user", err)
	}
	if user == nil {
		return nil, nil, model.NewUnauthorizedError()
	}
	return user, sess, nil
}

// issuePair はユーザーとセッションIDからアクセス・リフレッシュトークンを発行する。
func (s *Service) issuePair(user *model.User, sessionID string) (*TokenPair, error) {
	claims := token.NewClaims(user, sessionID)

	access, err := s.codec.Issue(claims, s.config.AccessTokenTTL)
	if err != nil {
		return nil, internalError("issue access token", err)
	}
	refresh, err := s.codec.Issue(claims, s.config.RefreshTokenTTL)
	if err != nil {
		return nil, internalError("issue refresh token", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.config.AccessTokenTTL / time.Second),
		User:         user.Profile(),
	}, nil
}

// discardSession はトークンを返せなかったログインのセッションを削除する。
func (s *Service) discardSession(ctx context.Context, sessionID string) {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		slog.Error("failed to discard session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

// mapTokenError はトークン検証の失敗を外部向けエラーに変換する。
// 署名不正・期限切れ・形式不正はいずれも同じUnauthorizedとなる。
func mapTokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrInvalidSignature),
		errors.Is(err, token.ErrExpired),
		errors.Is(err, token.ErrMalformed):
		return model.NewUnauthorizedError()
	default:
		return internalError("verify token", err)
	}
}

// mapSessionError はセッション参照の失敗を外部向けエラーに変換する。
func mapSessionError(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return model.NewUnauthorizedError()
	}
	return internalError("get session", err)
}

// internalError は詳細をログに残し、呼び出し元には一般的なInternalErrorを返す。
func internalError(op string, err error) error {
	slog.Error("auth operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return model.NewInternalError()
}

// compile-time interface check
var _ PasswordHasher = (*security.CredentialHasher)(nil)
