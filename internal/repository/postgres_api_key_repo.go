package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bookmarket-auth/internal/model"
	"github.com/lib/pq"
)

const apiKeyColumns = `id, user_id, key_hash, name, scopes, last_used, expires_at, created_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresAPIKeyRepo はPostgreSQLを使用したAPIキーリポジトリ。
type PostgresAPIKeyRepo struct {
	db *sql.DB
}

// NewPostgresAPIKeyRepo はPostgresAPIKeyRepoを生成する。
func NewPostgresAPIKeyRepo(db *sql.DB) *PostgresAPIKeyRepo {
	return &PostgresAPIKeyRepo{db: db}
}

// Create はAPIキーを作成する。scopesはtext[]として保存する。
func (r *PostgresAPIKeyRepo) Create(ctx context.Context, key *model.APIKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, user_id, key_hash, name, scopes, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.UserID, key.KeyHash, key.Name, pq.Array(key.Scopes), key.ExpiresAt, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのAPIキー一覧を返す。
func (r *PostgresAPIKeyRepo) ListByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	keys := []*model.APIKey{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate api keys: %w", err)
	}
	return keys, nil
}

// FindByID は指定ユーザーの指定キーを取得する。
func (r *PostgresAPIKeyRepo) FindByID(ctx context.Context, userID, id string) (*model.APIKey, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	key, err := scanAPIKey(r.db.QueryRowContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find api key: %w", err)
	}
	return key, nil
}

// Update は名前・スコープ・有効期限を更新する。
func (r *PostgresAPIKeyRepo) Update(ctx context.Context, userID, id, name string, scopes []string, expiresAt *time.Time) (*model.APIKey, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	key, err := scanAPIKey(r.db.QueryRowContext(ctx,
		`UPDATE api_keys SET name = $3, scopes = $4, expires_at = $5
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+apiKeyColumns,
		id, userID, name, pq.Array(scopes), expiresAt,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update api key: %w", err)
	}
	return key, nil
}

// Delete はAPIキーを削除する。
func (r *PostgresAPIKeyRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete api key: %w", err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanAPIKey(row rowScanner) (*model.APIKey, error) {
	key := &model.APIKey{}
	var lastUsed, expiresAt sql.NullTime

	err := row.Scan(&key.ID, &key.UserID, &key.KeyHash, &key.Name, pq.Array(&key.Scopes),
		&lastUsed, &expiresAt, &key.CreatedAt)
	if err != nil {
		return nil, err
	}

	if lastUsed.Valid {
		t := lastUsed.Time
		key.LastUsed = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		key.ExpiresAt = &t
	}
	return key, nil
}

// compile-time interface check
var _ APIKeyRepository = (*PostgresAPIKeyRepo)(nil)
