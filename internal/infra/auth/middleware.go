package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
)

// TokenValidator - все, что умеет проверить токен аналитика.
type TokenValidator interface {
	VerifyToken(header string) (*domain.AnalystClaims, error)
}

type ctxKey struct{}

// NewMiddleware пропускает только запросы с валидным токеном и кладет claims в контекст.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := v.VerifyToken(r.Header.Get("Authorization"))
			if err != nil {
				logger.Warn("analyst token rejected", zap.String("path", r.URL.Path), zap.Error(err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="aml-helpdesk"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			logger.Debug("analyst authenticated",
				zap.String("user_id", claims.UserID), zap.String("role", claims.Role), zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
		})
	}
}

// ClaimsFrom достает claims аналитика из контекста (nil, если API открыт).
func ClaimsFrom(ctx context.Context) *domain.AnalystClaims {
	claims, _ := ctx.Value(ctxKey{}).(*domain.AnalystClaims)
	return claims
}
