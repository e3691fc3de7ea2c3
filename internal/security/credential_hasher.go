// Package security はパスワードとAPIキーのハッシュ化、APIキーの生成を提供する。
package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyPrefix はAPIキーの先頭に付与する固定タグ。運用者がキーを識別するために使う。
	APIKeyPrefix = "bm_"
	// APIKeyLength はプレフィックスを除いたAPIキーの文字数。
	APIKeyLength = 32

	apiKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	// ErrHashing はハッシュ計算そのものが失敗した場合のエラー。
	ErrHashing = errors.New("credential hashing failed")
	// ErrMalformedHash は保存済みハッシュが不正な形式の場合のエラー。
	ErrMalformedHash = errors.New("malformed credential hash")
)

// CredentialHasher はbcryptによるパスワードとAPIキーの一方向ハッシュ化を行う。
// 平文をログ出力・永続化してはならない。
type CredentialHasher struct {
	cost int
}

// NewCredentialHasher はCredentialHasherを生成する。
// costはbcryptの許容範囲に丸める。0以下はbcrypt.DefaultCostとする。
func NewCredentialHasher(cost int) *CredentialHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &CredentialHasher{cost: cost}
}

// Cost は適用されるコスト係数を返す。
func (h *CredentialHasher) Cost() int {
	return h.cost
}

// HashPassword はパスワードを設定済みのコスト係数でハッシュ化する。
// パスワード強度の検証は行わない（上位層の責務）。
func (h *CredentialHasher) HashPassword(password string) (string, error) {
	return hashWithCost(password, h.cost)
}

// VerifyPassword はパスワードが保存済みハッシュと一致するかを返す。
// 不一致はエラーではなくfalseを返す。ハッシュ形式が不正な場合のみErrMalformedHashを返す。
func (h *CredentialHasher) VerifyPassword(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
}

// HashAPIKey はAPIキーを固定コスト（bcrypt.DefaultCost）でハッシュ化する。
func (h *CredentialHasher) HashAPIKey(key string) (string, error) {
	return hashWithCost(key, bcrypt.DefaultCost)
}

// GenerateAPIKey はAPIKeyPrefixに続けて62文字のアルファベットから
// 一様に選んだAPIKeyLength文字を並べたAPIキーを生成する。
// rand.Intは棄却サンプリングを行うため剰余によるバイアスは生じない。
func GenerateAPIKey() (string, error) {
	var sb strings.Builder
	sb.Grow(len(APIKeyPrefix) + APIKeyLength)
	sb.WriteString(APIKeyPrefix)

	max := big.NewInt(int64(len(apiKeyAlphabet)))
	for i := 0; i < APIKeyLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate api key: %w", err)
		}
		sb.WriteByte(apiKeyAlphabet[n.Int64()])
	}

	return sb.String(), nil
}

func hashWithCost(secret string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return string(b), nil
}
