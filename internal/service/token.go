package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/makeit-app/auth-service/internal/cache"
	"github.com/makeit-app/auth-service/internal/models"
	"github.com/makeit-app/auth-service/internal/storage"
	"github.com/makeit-app/auth-service/pkg/log"
)

// refreshSecretLen — число случайных байт в refresh-секрете до кодирования.
const refreshSecretLen = 48

type accessClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// generateAccessToken генерирует access-токен.
func (s *Service) generateAccessToken(ctx context.Context, user *models.User, now time.Time) (string, error) {
	const op = "service.token.generateAccessToken"

	lg := log.From(ctx)

	claims := accessClaims{
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// VerifyAccessToken валидирует access-токен и возвращает идентичность субъекта.
//
// Чистая операция без I/O: любой узел проверяет токены независимо.
// Различимые исходы: ErrTokenExpired (клиенту следует выполнить refresh),
// ErrTokenMalformed, ErrBadSignature, ErrInvalidToken — терминальные отказы.
func (s *Service) VerifyAccessToken(tokenStr string) (models.Principal, error) {
	const op = "service.token.VerifyAccessToken"

	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return models.Principal{}, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return models.Principal{}, fmt.Errorf("%s: %w", op, ErrTokenMalformed)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return models.Principal{}, fmt.Errorf("%s: %w", op, ErrBadSignature)
		default:
			return models.Principal{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return models.Principal{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	role := models.Role(claims.Role)
	if !role.Valid() {
		return models.Principal{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return models.Principal{
		UserID: uid,
		Email:  claims.Email,
		Role:   role,
	}, nil
}

// hashRefreshSecret вычисляет серверное представление refresh-секрета (sha256 → base64url).
func hashRefreshSecret(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// generateRefreshToken создает новый refresh-токен.
func (s *Service) generateRefreshToken(ctx context.Context, userID uuid.UUID, now time.Time) (string, error) {
	const (
		op          = "service.token.generateRefreshToken"
		maxAttempts = 5
	)

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		b := make([]byte, refreshSecretLen)
		if _, err := rand.Read(b); err != nil {
			lg.Error("refresh_rand_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}
		plain := base64.RawURLEncoding.EncodeToString(b)
		hash := hashRefreshSecret(plain)

		token := &models.RefreshToken{
			RefreshTokenHash: hash,
			UserID:           userID,
			CreatedAt:        now,
			ExpiresAt:        now.Add(s.cfg.RefreshTokenTTL),
			Revoked:          false,
		}

		if err := s.storage.SaveRefreshToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}

		if s.rcache != nil {
			entry := &cache.RefreshEntry{UserID: userID, Revoked: false, ExpiresAt: token.ExpiresAt}
			if err := s.rcache.Set(ctx, hash, entry, s.cfg.RefreshTokenTTL); err != nil {
				// Кэш best-effort: промах дороже не стоит, чем поход в БД.
				lg.Warn("refresh_cache_set_failed",
					slog.String("op", op),
					slog.String("err", err.Error()),
				)
			}
		}

		return plain, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return "", fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// validateRefreshToken валидирует refresh-токен и возвращает его запись.
//
// Кэш используется только как отрицательный быстрый путь (revoked=true);
// решение о ротации всегда принимает условный UPDATE в хранилище.
func (s *Service) validateRefreshToken(ctx context.Context, plain string, now time.Time) (*models.RefreshToken, error) {
	const op = "service.token.validateRefreshToken"

	lg := log.From(ctx)

	hash := hashRefreshSecret(plain)

	if s.rcache != nil {
		entry, found, err := s.rcache.Get(ctx, hash)
		if err != nil {
			lg.Warn("refresh_cache_get_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		} else if found && entry.Revoked {
			lg.Warn("refresh_revoked_cached",
				slog.String("op", op),
				slog.String("user_id", entry.UserID.String()),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
		}
	}

	token, err := s.storage.RefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found",
				slog.String("op", op),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if token.Revoked {
		lg.Warn("refresh_revoked",
			slog.String("op", op),
			slog.String("user_id", token.UserID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	if now.After(token.ExpiresAt) {
		lg.Warn("refresh_expired",
			slog.String("op", op),
			slog.String("user_id", token.UserID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	return token, nil
}
