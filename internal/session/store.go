// Package session はサーバー側セッションの作成・参照・取り消しを提供する。
// セッション行の存在が失効判定の唯一の根拠となる。
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bookmarket-auth/internal/model"
	"github.com/hitoshi/bookmarket-auth/internal/repository"
)

// ErrNotFound はセッションが存在しない、または有効期限を過ぎている場合のエラー。
var ErrNotFound = errors.New("session not found")

// Store はSessionRepositoryを包み、有効期限の計算と生存判定を担う。
type Store struct {
	repo       repository.SessionRepository
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option はStoreの設定を変更する。
type Option func(*Store)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore はStoreを生成する。
func NewStore(repo repository.SessionRepository, accessTTL, refreshTTL time.Duration, opts ...Option) *Store {
	s := &Store{
		repo:       repo,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create は新しいセッションを作成する。
// 有効期限はrememberMeの場合リフレッシュTTL、それ以外はアクセスTTLの2倍。
func (s *Store) Create(ctx context.Context, userID string, userAgent, ipAddress *string, rememberMe bool) (*model.Session, error) {
	ttl := 2 * s.accessTTL
	if rememberMe {
		ttl = s.refreshTTL
	}

	now := s.now()
	sess := &model.Session{
		ID:     uuid.New().String(),
		UserID: userID,
		// 検証には使わない識別用マーカー
		TokenHash: uuid.New().String(),
		ExpiresAt: now.Add(ttl),
		UserAgent: userAgent,
		IPAddress: ipAddress,
		CreatedAt: now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// Get は有効なセッションを返す。存在しない、または期限切れの場合はErrNotFoundを返す。
func (s *Store) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !sess.AliveAt(s.now()) {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete はセッションを削除する。存在しない場合もエラーにしない。
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAllForUser はユーザーの全セッションを1回の一括削除で取り消し、件数を返す。
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return n, nil
}

// SweepExpired は期限切れセッションを削除し、件数を返す。
// リクエスト処理からは呼ばず、定期ジョブから実行する。
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}
	return n, nil
}

// CountActive は有効なセッション数を返す。
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	n, err := s.repo.CountActive(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}
