// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/bookmarket-auth/internal/model"
)

// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
var ErrDuplicateEmail = errors.New("email already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はプロフィール項目を部分更新する。nilの項目は既存値を維持する。
	// 見つからない場合はnilを返す。
	UpdateProfile(ctx context.Context, id string, firstName, lastName, phone *string) (*model.User, error)

	// UpdatePassword はパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// UpdateStatus はアカウント状態を更新する。対象が存在しない場合はfalseを返す。
	UpdateStatus(ctx context.Context, id string, status model.Status) (bool, error)

	// UpdateLastLogin は最終ログイン日時を更新する。
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionRepository はセッションデータの永続化インターフェース。
// 期限切れ・取り消し済みのセッションは行の不在で表現する（ハードデリート）。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	// 有効期限の判定は呼び出し側で行う。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しなくてもエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	// DeleteExpired はexpires_at < nowのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// CountActive はnow時点で有効なセッション数を返す。
	CountActive(ctx context.Context, now time.Time) (int64, error)
}

// APIKeyRepository はAPIキーの永続化インターフェース。
// 操作は常に所有ユーザーIDで絞り込む。
type APIKeyRepository interface {
	// Create はAPIキーを作成する。
	Create(ctx context.Context, key *model.APIKey) error
	// ListByUserID はユーザーのAPIキー一覧を作成日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	// FindByID は指定ユーザーの指定キーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.APIKey, error)
	// Update は名前・スコープ・有効期限を更新する。見つからない場合はnilを返す。
	Update(ctx context.Context, userID, id, name string, scopes []string, expiresAt *time.Time) (*model.APIKey, error)
	// Delete はAPIキーを削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}
