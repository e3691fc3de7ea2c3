// Package apikey はユーザー自身のAPIキーの発行・一覧・更新・取り消しを提供する。
// キーの平文は発行時に一度だけ返し、以後は復元できない。
package apikey

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/bookmarket-auth/internal/model"
	"github.com/hitoshi/bookmarket-auth/internal/repository"
	"github.com/hitoshi/bookmarket-auth/internal/security"
)

const (
	maxNameLength = 100
	maxScopes     = 32
)

// Hasher はAPIキーのハッシュ化インターフェース。
type Hasher interface {
	HashAPIKey(key string) (string, error)
}

// Input はAPIキーの作成・更新内容。
type Input struct {
	Name      string
	Scopes    []string
	ExpiresAt *time.Time
}

// View はAPIキーの外部公開用表現。ハッシュは含めない。
type View struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	LastUsed  *time.Time `json:"last_used"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Created は発行直後のAPIキー。Keyは平文で、このレスポンスでのみ返す。
type Created struct {
	View
	Key string `json:"key"`
}

// Service はAPIキー管理のサービス層。
type Service struct {
	repo     repository.APIKeyRepository
	hasher   Hasher
	generate func() (string, error)
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.APIKeyRepository, hasher Hasher) *Service {
	return &Service{
		repo:     repo,
		hasher:   hasher,
		generate: security.GenerateAPIKey,
		now:      time.Now,
	}
}

// Create はAPIキーを生成し、ハッシュのみを保存する。
func (s *Service) Create(ctx context.Context, userID string, in Input) (*Created, error) {
	scopes, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	plain, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("APIキーの生成に失敗しました: %w", err)
	}
	hash, err := s.hasher.HashAPIKey(plain)
	if err != nil {
		return nil, fmt.Errorf("APIキーのハッシュ化に失敗しました: %w", err)
	}

	key := &model.APIKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		KeyHash:   hash,
		Name:      in.Name,
		Scopes:    scopes,
		ExpiresAt: in.ExpiresAt,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("APIキーの保存に失敗しました: %w", err)
	}

	slog.Info("APIキーを発行しました",
		slog.String("user_id", userID),
		slog.String("api_key_id", key.ID),
	)
	return &Created{View: toView(key), Key: plain}, nil
}

// List はユーザーのAPIキー一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]View, error) {
	keys, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("APIキー一覧の取得に失敗しました: %w", err)
	}
	views := make([]View, 0, len(keys))
	for _, k := range keys {
		views = append(views, toView(k))
	}
	return views, nil
}

// Get はユーザーの指定APIキーを返す。
func (s *Service) Get(ctx context.Context, userID, keyID string) (*View, error) {
	key, err := s.repo.FindByID(ctx, userID, keyID)
	if err != nil {
		return nil, fmt.Errorf("APIキーの取得に失敗しました: %w", err)
	}
	if key == nil {
		return nil, model.NewNotFoundError("APIキー")
	}
	v := toView(key)
	return &v, nil
}

// Update は名前・スコープ・有効期限を置き換える。
func (s *Service) Update(ctx context.Context, userID, keyID string, in Input) (*View, error) {
	scopes, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	key, err := s.repo.Update(ctx, userID, keyID, in.Name, scopes, in.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("APIキーの更新に失敗しました: %w", err)
	}
	if key == nil {
		return nil, model.NewNotFoundError("APIキー")
	}
	v := toView(key)
	return &v, nil
}

// Revoke はAPIキーを削除する。対象がなければNotFound。
func (s *Service) Revoke(ctx context.Context, userID, keyID string) error {
	ok, err := s.repo.Delete(ctx, userID, keyID)
	if err != nil {
		return fmt.Errorf("APIキーの削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewNotFoundError("APIキー")
	}

	slog.Info("APIキーを取り消しました",
		slog.String("user_id", userID),
		slog.String("api_key_id", keyID),
	)
	return nil
}

// validate は入力を検証し、空白を除いたスコープ一覧を返す。
func (s *Service) validate(in Input) ([]string, error) {
	n := utf8.RuneCountInString(in.Name)
	if n < 1 || n > maxNameLength {
		return nil, model.NewValidationError("名前は1〜100文字で入力してください")
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, model.NewValidationError("有効期限は未来の日時を指定してください")
	}
	if len(in.Scopes) > maxScopes {
		return nil, model.NewValidationError("スコープが多すぎます")
	}

	scopes := make([]string, 0, len(in.Scopes))
	for _, sc := range in.Scopes {
		sc = strings.TrimSpace(sc)
		if sc == "" {
			return nil, model.NewValidationError("空のスコープは指定できません")
		}
		scopes = append(scopes, sc)
	}
	return scopes, nil
}

func toView(k *model.APIKey) View {
	scopes := k.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return View{
		ID:        k.ID,
		Name:      k.Name,
		Scopes:    scopes,
		LastUsed:  k.LastUsed,
		ExpiresAt: k.ExpiresAt,
		CreatedAt: k.CreatedAt,
	}
}
