package auth

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/bookmarket-auth/internal/model"
)

const (
	// maxPasswordBytes はbcryptが受け付ける入力長の上限。
	maxPasswordBytes = 72
	maxNameLength    = 100
	maxEmailLength   = 255
)

// validateEmail はメールアドレスが表示名なしの単一アドレスであることを検証する。
func validateEmail(email string) error {
	if email == "" || len(email) > maxEmailLength {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewValidationError("メールアドレスの形式が正しくありません")
	}
	return nil
}

func (s *Service) validatePassword(password string) error {
	if len(password) < s.config.PasswordMinLength || len(password) > maxPasswordBytes {
		return model.NewValidationError("パスワードの長さが不正です")
	}
	return nil
}

// ValidateName は氏名フィールドが1〜100文字であることを検証する。
func ValidateName(field, value string) error {
	n := utf8.RuneCountInString(value)
	if n < 1 || n > maxNameLength {
		return model.NewValidationError(field + "は1〜100文字で入力してください")
	}
	return nil
}

// ValidatePhone は電話番号が先頭の+を除いて7〜15桁の数字であることを検証する。
func ValidatePhone(phone string) error {
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return model.NewValidationError("電話番号の形式が正しくありません")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return model.NewValidationError("電話番号の形式が正しくありません")
		}
	}
	return nil
}
