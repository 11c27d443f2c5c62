package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/makeit-app/auth-service/internal/models"
	"github.com/makeit-app/auth-service/internal/storage"
	"github.com/makeit-app/auth-service/pkg/log"
	"github.com/makeit-app/auth-service/pkg/redact"
)

// bcryptCost — стоимость хэширования паролей.
const bcryptCost = 12

// maxDisplayNameLen — максимальная длина отображаемого имени (в рунах).
const maxDisplayNameLen = 100

// RegisterUser регистрирует нового пользователя по инвайт-коду.
//
// Порядок проверок: email свободен → инвайт валиден → создание пользователя →
// потребление инвайта (условный UPDATE) → выпуск пары токенов.
// Bootstrap-код из конфигурации проходит без обращения к таблице инвайтов
// и ничего не потребляет.
func (s *Service) RegisterUser(ctx context.Context, email, password, displayName, inviteCode string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.RegisterUser"

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" || len([]rune(displayName)) > maxDisplayNameLen {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidDisplayName)
	}

	now := time.Now().UTC()

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	invite, err := s.resolveInvite(ctx, inviteCode, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		PasswordHash: hashedPassword,
		DisplayName:  displayName,
		Role:         models.RoleUser,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if invite != nil {
		ok, err := s.storage.MarkInviteCodeUsed(ctx, invite.ID, user.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, nil, fmt.Errorf("%s: %w", op, ErrInviteInvalid)
			}

			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		if !ok {
			// Конкурентная регистрация потребила код первой.
			lg.Warn("invite_lost_race",
				slog.String("op", op),
				slog.String("invite_id", invite.ID.String()),
				slog.String("user_id", user.ID.String()),
			)
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInviteUsed)
		}

		lg.Info("invite_consumed",
			slog.String("op", op),
			slog.String("invite_id", invite.ID.String()),
			slog.String("user_id", user.ID.String()),
		)
	}

	lg.Info("user_registered",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(user.Email)),
	)

	pair, err := s.issueTokenPair(ctx, user, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// LoginUser выполняет вход по email+пароль.
//
// Неизвестный email и неверный пароль возвращают одну и ту же ошибку
// ErrInvalidCredentials, чтобы ответ не раскрывал, какой шаг провалился.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.LoginUser"

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !user.Enabled {
		lg.Warn("login_disabled_account",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrAccountDisabled)
	}

	now := time.Now().UTC()

	pair, err := s.issueTokenPair(ctx, user, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// RefreshTokens обновляет пару токенов по refresh-токену (ротация).
//
// Порядок: валидация предъявленного токена → проверка enabled владельца →
// условный отзыв старой записи (точка сериализации конкурентных ротаций) →
// выпуск новой пары. Проигравшая конкурентная ротация получает ErrTokenRevoked
// и не получает токенов: с одного refresh-токена чеканится ровно одна пара.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.RefreshTokens"

	lg := log.From(ctx)

	now := time.Now().UTC()

	token, err := s.validateRefreshToken(ctx, refreshToken, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	// Отключение аккаунта блокирует refresh немедленно, без отзыва
	// каждого выданного токена.
	if !user.Enabled {
		lg.Warn("refresh_disabled_account",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrAccountDisabled)
	}

	revoked, err := s.storage.RevokeRefreshTokenIfActive(ctx, token.RefreshTokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !revoked {
		lg.Warn("refresh_rotation_lost",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	if s.rcache != nil {
		if err := s.rcache.MarkRevoked(ctx, token.RefreshTokenHash); err != nil {
			lg.Warn("refresh_cache_revoke_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	pair, err := s.issueTokenPair(ctx, user, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// Logout отзывает все refresh-токены пользователя.
//
// Идемпотентная операция: повторный вызов вернёт 0. Уже выпущенные
// access-токены продолжают проходить проверку подписи до истечения TTL.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "service.auth.Logout"

	lg := log.From(ctx)

	count, err := s.storage.RevokeAllByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("logout",
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.Int64("revoked", count),
	)

	return count, nil
}

// UserByID возвращает пользователя по идентификатору (например, для /auth/me).
func (s *Service) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "service.auth.UserByID"

	user, err := s.storage.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// resolveInvite проверяет инвайт-код при регистрации.
// Возвращает запись инвайта, которую нужно потребить, либо nil,
// если инвайты выключены или использован bootstrap-код.
func (s *Service) resolveInvite(ctx context.Context, inviteCode string, now time.Time) (*models.InviteCode, error) {
	const op = "service.auth.resolveInvite"

	if !s.invites.Required {
		return nil, nil
	}

	code := strings.TrimSpace(inviteCode)
	if code == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInviteRequired)
	}

	// Bootstrap-путь: без обращения к БД, запись не потребляется.
	if s.invites.BootstrapCode != "" && code == s.invites.BootstrapCode {
		log.From(ctx).Info("bootstrap_invite_used", slog.String("op", op))
		return nil, nil
	}

	invite, err := s.storage.InviteCodeByCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInviteInvalid)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if now.After(invite.ExpiresAt) {
		return nil, fmt.Errorf("%s: %w", op, ErrInviteExpired)
	}

	if invite.Used() {
		return nil, fmt.Errorf("%s: %w", op, ErrInviteUsed)
	}

	return invite, nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}

// issueTokenPair выпускает новую пару access+refresh токенов.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User, now time.Time) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	accessToken, err := s.generateAccessToken(ctx, user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plain, err := s.generateRefreshToken(ctx, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plain,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}
