// httperr стандартизирует ответы об ошибках HTTP-слоя auth-сервиса.
// На вход он принимает ошибку сервисного слоя (sentinel-ошибки из internal/service
// или контекстные ошибки), а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Источник истинности по маппингу: комментарии к переменным ошибок
// в internal/service/service.go.
package httperr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/makeit-app/auth-service/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ErrBadRequest — локальная ошибка транспортного слоя (битый JSON/параметры).
var ErrBadRequest = errors.New("bad request")

// ErrUnauthenticated — локальная ошибка транспортного слоя (нет/битый bearer).
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden — локальная ошибка транспортного слоя (роль не допущена к ресурсу).
var ErrForbidden = errors.New("forbidden")

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ.
//
// Принципы маппинга:
//   - err == nil — программная ошибка вызова: 500/internal, чтобы не послать
//     "200 OK" с телом ошибки и не маскировать баг;
//   - все отказы по токенам (истёк/битый/подпись/отозван) — один 401-ответ,
//     чтобы не подсказывать атакующему, на каком шаге проверка провалилась;
//   - транзиентные ошибки (deadline, обрыв) НЕ принимают вид ошибок
//     аутентификации: им соответствуют 5xx-коды;
//   - неизвестная ошибка — 500/internal без утечки деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return http.StatusInternalServerError, resp("internal", "internal error")
	}

	switch {
	// 400: валидация входных данных.
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword),
		errors.Is(err, service.ErrInvalidDisplayName),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, resp("invalid_argument", "invalid argument")

	// 400: инвайты — различимые коды, фронт показывает разные подсказки.
	case errors.Is(err, service.ErrInviteRequired):
		return http.StatusBadRequest, resp("invite_required", "invite code is required")
	case errors.Is(err, service.ErrInviteInvalid):
		return http.StatusBadRequest, resp("invite_invalid", "invalid invite code")
	case errors.Is(err, service.ErrInviteExpired):
		return http.StatusBadRequest, resp("invite_expired", "invite code expired")
	case errors.Is(err, service.ErrInviteUsed):
		return http.StatusBadRequest, resp("invite_used", "invite code already used")

	// 401: учётные данные.
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, resp("unauthenticated", "invalid credentials")

	// 401: любой отказ по токену — один и тот же ответ.
	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenMalformed),
		errors.Is(err, service.ErrBadSignature),
		errors.Is(err, service.ErrTokenRevoked),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, resp("invalid_token", "invalid or expired token")

	// 403.
	case errors.Is(err, service.ErrAccountDisabled):
		return http.StatusForbidden, resp("account_disabled", "account disabled")
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, resp("forbidden", "forbidden")

	// 409.
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, resp("already_exists", "email already taken")

	// Транзиентные.
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, resp("deadline_exceeded", "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, resp("canceled", "canceled")

	default:
		return http.StatusInternalServerError, resp("internal", "internal error")
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := ToHTTP(err)

	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		body.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func resp(code, msg string) ErrorResponse {
	return ErrorResponse{Error: APIError{Code: code, Message: msg}}
}
