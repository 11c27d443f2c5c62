package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/makeit-app/auth-service/internal/models"
	"github.com/makeit-app/auth-service/internal/transport/http/httperr"
)

// TokenVerifier проверяет access-токен и возвращает идентичность субъекта.
// Реализуется сервисным слоем (service.Service.VerifyAccessToken).
type TokenVerifier interface {
	VerifyAccessToken(tokenStr string) (models.Principal, error)
}

type ctxKey int

const (
	ctxPrincipal ctxKey = iota
	ctxAuthErr
)

// Authn — обогащающий мидлвар: извлекает Bearer-токен из Authorization,
// проверяет его и кладёт Principal в контекст запроса.
//
// Сам по себе запросы не отклоняет: публичные маршруты (login/register)
// должны работать и с просроченным токеном в заголовке. Ошибка проверки
// сохраняется в контексте, чтобы RequireAuth вернул точную причину отказа.
func Authn(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			p, err := v.VerifyAccessToken(token)
			if err != nil {
				ctx := context.WithValue(r.Context(), ctxAuthErr, err)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx := context.WithValue(r.Context(), ctxPrincipal, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth пропускает только запросы с валидным Principal в контексте.
// Без токена — 401 unauthenticated; с невалидным — 401 с точной причиной.
func RequireAuth() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			if err, ok := r.Context().Value(ctxAuthErr).(error); ok {
				httperr.WriteError(w, r, err)
				return
			}

			httperr.WriteError(w, r, httperr.ErrUnauthenticated)
		})
	}
}

// RequireRole пропускает только субъектов с указанной ролью.
// Навешивается ПОСЛЕ RequireAuth.
func RequireRole(role models.Role) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httperr.WriteError(w, r, httperr.ErrUnauthenticated)
				return
			}

			if p.Role != role {
				httperr.WriteError(w, r, httperr.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext возвращает идентичность запроса, если она установлена Authn.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipal).(models.Principal)
	return p, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) || len(auth) <= len(prefix) {
		return ""
	}

	return strings.TrimSpace(auth[len(prefix):])
}
