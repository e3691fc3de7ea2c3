package apikey

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/bookmarket-auth/internal/model"
	"github.com/hitoshi/bookmarket-auth/internal/security"
	"golang.org/x/crypto/bcrypt"
)

// memAPIKeyRepo はマップで状態を保持するAPIKeyRepositoryのテスト実装。
type memAPIKeyRepo struct {
	mu       sync.Mutex
	keys     map[string]*model.APIKey
	createFn func(ctx context.Context, key *model.APIKey) error
}

func newMemRepo() *memAPIKeyRepo {
	return &memAPIKeyRepo{keys: map[string]*model.APIKey{}}
}

func (m *memAPIKeyRepo) Create(ctx context.Context, key *model.APIKey) error {
	if m.createFn != nil {
		return m.createFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *key
	m.keys[key.ID] = &c
	return nil
}

func (m *memAPIKeyRepo) ListByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.APIKey
	for _, k := range m.keys {
		if k.UserID == userID {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memAPIKeyRepo) FindByID(ctx context.Context, userID, id string) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.UserID != userID {
		return nil, nil
	}
	c := *k
	return &c, nil
}

func (m *memAPIKeyRepo) Update(ctx context.Context, userID, id, name string, scopes []string, expiresAt *time.Time) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.UserID != userID {
		return nil, nil
	}
	k.Name, k.Scopes, k.ExpiresAt = name, scopes, expiresAt
	c := *k
	return &c, nil
}

func (m *memAPIKeyRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.UserID != userID {
		return false, nil
	}
	delete(m.keys, id)
	return true, nil
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	if apiErr.Code != code {
		t.Errorf("code = %s, want %s", apiErr.Code, code)
	}
}

func newTestService(repo *memAPIKeyRepo) *Service {
	return NewService(repo, security.NewCredentialHasher(bcrypt.MinCost))
}

func TestCreate_StoresOnlyHashAndReturnsPlaintextOnce(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	created, err := svc.Create(context.Background(), "user-1", Input{Name: "ci", Scopes: []string{" read "}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(created.Key, security.APIKeyPrefix) {
		t.Errorf("Key = %q, want %s prefix", created.Key, security.APIKeyPrefix)
	}

	stored := repo.keys[created.ID]
	if stored.KeyHash == created.Key {
		t.Fatal("plaintext key persisted")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.KeyHash), []byte(created.Key)); err != nil {
		t.Errorf("stored hash does not match issued key: %v", err)
	}
	if len(created.Scopes) != 1 || created.Scopes[0] != "read" {
		t.Errorf("Scopes = %v, want [read]", created.Scopes)
	}

	// 取得結果に平文は含まれない
	got, err := svc.Get(context.Background(), "user-1", created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("Get ID = %q", got.ID)
	}
}

func TestCreate_GeneratorFailure_ReturnsError(t *testing.T) {
	svc := newTestService(newMemRepo())
	svc.generate = func() (string, error) { return "", errors.New("entropy exhausted") }

	if _, err := svc.Create(context.Background(), "user-1", Input{Name: "ci"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCreate_InvalidInput_ReturnsValidation(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	tests := []Input{
		{Name: ""},
		{Name: strings.Repeat("n", 101)},
		{Name: "ci", ExpiresAt: &past},
		{Name: "ci", Scopes: []string{"read", "  "}},
	}
	svc := newTestService(newMemRepo())
	for _, in := range tests {
		_, err := svc.Create(context.Background(), "user-1", in)
		assertCode(t, err, model.ErrCodeValidation)
	}
}

func TestList_OnlyOwnKeys_EmptyScopesNotNull(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "user-1", Input{Name: "mine"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, "user-2", Input{Name: "theirs"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	views, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != 1 || views[0].Name != "mine" {
		t.Fatalf("views = %+v", views)
	}
	if views[0].Scopes == nil {
		t.Error("Scopes should serialize as [] not null")
	}
}

func TestGetUpdateRevoke_OtherUsersKey_NotFound(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, _ := svc.Create(ctx, "owner", Input{Name: "ci"})

	_, err := svc.Get(ctx, "intruder", created.ID)
	assertCode(t, err, model.ErrCodeNotFound)

	_, err = svc.Update(ctx, "intruder", created.ID, Input{Name: "pwned"})
	assertCode(t, err, model.ErrCodeNotFound)

	assertCode(t, svc.Revoke(ctx, "intruder", created.ID), model.ErrCodeNotFound)

	if _, ok := repo.keys[created.ID]; !ok {
		t.Error("key removed by non-owner")
	}
}

func TestUpdateAndRevoke_Owner(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, _ := svc.Create(ctx, "owner", Input{Name: "ci"})
	future := time.Now().Add(24 * time.Hour)

	updated, err := svc.Update(ctx, "owner", created.ID, Input{Name: "deploy", Scopes: []string{"write"}, ExpiresAt: &future})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "deploy" || updated.ExpiresAt == nil {
		t.Errorf("updated = %+v", updated)
	}

	if err := svc.Revoke(ctx, "owner", created.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	assertCode(t, svc.Revoke(ctx, "owner", created.ID), model.ErrCodeNotFound)
}
