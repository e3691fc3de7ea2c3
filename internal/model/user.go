// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleAdmin:
		return true
	}
	return false
}

// Status はユーザーアカウントの状態を表す。
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// User はサービス利用ユーザーを表す。
// PasswordHashは外部に返却してはならない。UserProfileに変換してから返すこと。
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	FirstName     *string
	LastName      *string
	Phone         *string
	Role          Role
	Status        Status
	EmailVerified bool
	PhoneVerified bool
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserProfile は外部公開用のユーザー情報。
type UserProfile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FirstName     *string   `json:"first_name"`
	LastName      *string   `json:"last_name"`
	Phone         *string   `json:"phone"`
	Role          Role      `json:"role"`
	Status        Status    `json:"status"`
	EmailVerified bool      `json:"email_verified"`
	PhoneVerified bool      `json:"phone_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Profile はUserを外部公開用のUserProfileに変換する。
func (u *User) Profile() *UserProfile {
	return &UserProfile{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Phone:         u.Phone,
		Role:          u.Role,
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// Session は認証済みクライアント1つ分のログインセッションを表す。
// IDはトークンのjtiとしても使用される。
// TokenHashは不透明なマーカーであり、検証可能な秘密ではない。
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UserAgent *string
	IPAddress *string
	CreatedAt time.Time
}

// AliveAt はnow時点でセッションが有効かどうかを返す。
func (s *Session) AliveAt(now time.Time) bool {
	return s != nil && s.ExpiresAt.After(now)
}

// APIKey は長期利用のAPIキーを表す。
// 平文のキーは保存せず、KeyHashのみを永続化する。
type APIKey struct {
	ID        string
	UserID    string
	KeyHash   string
	Name      string
	Scopes    []string
	LastUsed  *time.Time
	ExpiresAt *time.Time
	CreatedAt time.Time
}
