package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
)

// Допуск на рассинхрон часов с IdP
const clockLeeway = 30 * time.Second

var ErrNoToken = errors.New("auth: bearer token is missing")

// Validator проверяет токены аналитиков, подписанные внешним IdP (RS256).
// Сами токены хелпдеск не выпускает, поэтому приватного ключа здесь нет.
type Validator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

func NewValidator(pubKey *rsa.PublicKey) *Validator {
	return &Validator{
		publicKey: pubKey,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockLeeway),
		),
	}
}

// NewValidatorFromPEM - пустой ключ означает открытый API: (nil, nil).
func NewValidatorFromPEM(data []byte) (*Validator, error) {
	if len(data) == 0 {
		return nil, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	return NewValidator(key), nil
}

// VerifyToken принимает значение заголовка Authorization ("Bearer <jwt>") или сам токен.
func (v *Validator) VerifyToken(header string) (*domain.AnalystClaims, error) {
	raw := strings.TrimSpace(header)
	if scheme, rest, ok := strings.Cut(raw, " "); ok && strings.EqualFold(scheme, "Bearer") {
		raw = strings.TrimSpace(rest)
	}
	if raw == "" {
		return nil, ErrNoToken
	}

	claims := &domain.AnalystClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.publicKey, nil
	}); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return claims, nil
}
