// Package middleware содержит HTTP middleware сервиса приёма заказов.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderdesk-system/internal/audit"
	"github.com/mmeshcher/orderdesk-system/internal/auth"
	"github.com/mmeshcher/orderdesk-system/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityMiddleware извлекает учётные данные из заголовка Authorization
// и помещает проверенную личность отправителя в контекст запроса.
// Запрос без заголовка пропускается дальше анонимным: решение о том,
// обязательна ли аутентификация, принимает обработчик.
type IdentityMiddleware struct {
	resolver *auth.Resolver
	audit    audit.Recorder
	logger   *zap.Logger
}

// NewIdentityMiddleware создаёт middleware проверки личности отправителя.
func NewIdentityMiddleware(resolver *auth.Resolver, recorder audit.Recorder, logger *zap.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{
		resolver: resolver,
		audit:    recorder,
		logger:   logger,
	}
}

// Middleware проверяет bearer-токен запроса. Недействительный токен
// отклоняется сразу: анонимный запрос и запрос с поддельным токеном —
// разные ситуации, вторая фиксируется в журнале событий безопасности.
func (m *IdentityMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := bearerToken(r)
		if credential == "" {
			next.ServeHTTP(w, r)
			return
		}

		ident, err := m.resolver.Resolve(credential)
		if err != nil {
			m.audit.Record(audit.Event{
				Type:     audit.EventAuthFailure,
				Severity: audit.SeverityWarning,
				Fields: map[string]string{
					"remoteAddr": r.RemoteAddr,
					"path":       r.URL.Path,
					"error":      err.Error(),
				},
			})
			m.logger.Warn("credential rejected",
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return header
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   "UNAUTHENTICATED",
		"message": "invalid or expired credential",
	})
}

// IdentityFromContext извлекает проверенную личность из контекста запроса.
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(*model.Identity)
	return ident, ok && ident != nil
}
