package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// AnalystClaims - claims токена аналитика, выпущенного внешним IdP (RS256).
type AnalystClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
