// Package user はユーザープロフィールの参照と更新を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/bookmarket-auth/internal/auth"
	"github.com/hitoshi/bookmarket-auth/internal/model"
	"github.com/hitoshi/bookmarket-auth/internal/repository"
)

// ProfileUpdate はプロフィールの部分更新内容。nilの項目は変更しない。
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// GetProfile はユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("ユーザー")
	}
	return user.Profile(), nil
}

// UpdateProfile はプロフィールを部分更新する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.UserProfile, error) {
	if in.FirstName != nil {
		if err := auth.ValidateName("名", *in.FirstName); err != nil {
			return nil, err
		}
	}
	if in.LastName != nil {
		if err := auth.ValidateName("姓", *in.LastName); err != nil {
			return nil, err
		}
	}
	if in.Phone != nil {
		if err := auth.ValidatePhone(*in.Phone); err != nil {
			return nil, err
		}
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, in.FirstName, in.LastName, in.Phone)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("ユーザー")
	}

	slog.Info("プロフィールを更新しました",
		slog.String("user_id", userID),
	)
	return user.Profile(), nil
}
