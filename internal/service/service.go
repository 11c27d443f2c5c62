// service содержит бизнес-логику auth-сервиса:
// регистрацию по инвайт-кодам, аутентификацию, выпуск/проверку access-токенов,
// ротацию refresh-токенов и работу с хранилищем через интерфейсы из пакета storage.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданное хранилище (storage.Storage) потокобезопасно.
//   - Каждая операция читает "now" один раз и использует его во всех проверках
//     сроков, чтобы решения внутри одного запроса были согласованными.
//   - Ошибки возвращаются и далее маппятся
//     транспортом на HTTP-статусы (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"

	"github.com/makeit-app/auth-service/internal/cache"
	"github.com/makeit-app/auth-service/internal/config"
	"github.com/makeit-app/auth-service/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Для обоих случаев текст и код идентичны, чтобы не раскрывать,
	// зарегистрирован ли email. Транспорт: HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — токен (access/refresh) некорректен или отсутствует в хранилище.
	// Транспорт: HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. Для access-токена это сигнал
	// клиенту выполнить refresh. Транспорт: HTTP 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenMalformed — access-токен не разбирается как JWT. Транспорт: HTTP 401.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrBadSignature — подпись access-токена не сходится с ключом сервиса.
	// Транспорт: HTTP 401.
	ErrBadSignature = errors.New("token signature mismatch")

	// ErrTokenRevoked — refresh-токен отозван (logout/ротация). Повторное предъявление
	// уже ротированного токена — сигнал replay/кражи; доверие не продлеваем.
	// Транспорт: HTTP 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrAccountDisabled — аккаунт пользователя отключён администратором.
	// Блокирует логин и refresh независимо от валидности токенов.
	// Транспорт: HTTP 403.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrEmailTaken — e-mail уже занят другим пользователем.
	// Транспорт: HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrUserNotFound — пользователь не найден по идентификатору.
	// Транспорт: HTTP 401 (субъект токена больше не существует).
	ErrUserNotFound = errors.New("user not found")

	// ErrRefreshTokenCollision — исчерпаны попытки сгенерировать уникальный refresh-токен
	// (редкий случай коллизий при сохранении хэша в БД после нескольких ретраев).
	// Транспорт: HTTP 500.
	ErrRefreshTokenCollision = errors.New("refresh token collision")

	// ErrInviteCodeCollision — исчерпаны попытки сгенерировать уникальный код приглашения.
	// Транспорт: HTTP 500.
	ErrInviteCodeCollision = errors.New("invite code collision")

	// ErrInvalidEmail — e-mail имеет некорректный формат или не проходит политику валидации.
	// Транспорт: HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности.
	// Транспорт: HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой.
	// Транспорт: HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrInvalidDisplayName — отображаемое имя пустое или длиннее 100 символов.
	// Транспорт: HTTP 400.
	ErrInvalidDisplayName = errors.New("invalid display name")

	// ErrInviteRequired — регистрация требует инвайт-код, а он не передан.
	// Транспорт: HTTP 400.
	ErrInviteRequired = errors.New("invite code is required")

	// ErrInviteInvalid — инвайт-код не найден. Транспорт: HTTP 400.
	ErrInviteInvalid = errors.New("invalid invite code")

	// ErrInviteExpired — срок действия инвайт-кода истёк. Транспорт: HTTP 400.
	ErrInviteExpired = errors.New("invite code expired")

	// ErrInviteUsed — инвайт-код уже потреблён (в том числе конкурентной
	// регистрацией). Транспорт: HTTP 400.
	ErrInviteUsed = errors.New("invite code already used")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig
	invites config.InviteConfig
	rcache  cache.RefreshCache // может быть nil, если кэш не сконфигурирован
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cfg config.AuthConfig, invites config.InviteConfig) *Service {
	return &Service{
		storage: storage,
		cfg:     cfg,
		invites: invites,
	}
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}
