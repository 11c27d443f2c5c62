package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/makeit-app/auth-service/internal/config"
	"github.com/makeit-app/auth-service/internal/models"
	"github.com/makeit-app/auth-service/internal/storage"
	"github.com/makeit-app/auth-service/mocks"
)

func testAuthCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "unit-test-secret-0123456789abcdef",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Issuer:          "auth-service",
		Audience:        []string{"makeit-web"},
	}
}

func testInviteCfg() config.InviteConfig {
	return config.InviteConfig{
		Required:      true,
		BootstrapCode: "BOOTSTRAP-CODE",
		CodeTTL:       168 * time.Hour,
	}
}

func newServiceWithMock(t *testing.T) (*Service, *mocks.MockStorage, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockSt := mocks.NewMockStorage(ctrl)
	svc := New(mockSt, testAuthCfg(), testInviteCfg())
	return svc, mockSt, ctrl
}

func testUser() *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		PasswordHash: "$2a$12$irrelevant",
		DisplayName:  "User",
		Role:         models.RoleUser,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestGenerateAccessToken_AndVerify_OK(t *testing.T) {
	svc, _, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	user := testUser()
	user.Role = models.RoleAdmin
	now := time.Now().UTC()

	at, err := svc.generateAccessToken(context.Background(), user, now)
	require.NoError(t, err)

	p, err := svc.VerifyAccessToken(at)
	require.NoError(t, err)
	require.Equal(t, user.ID, p.UserID)
	require.Equal(t, user.Email, p.Email)
	require.Equal(t, models.RoleAdmin, p.Role)
	require.True(t, p.IsAdmin())
}

func TestVerifyAccessToken_WrongAlg_WrongIssuer_WrongAudience(t *testing.T) {
	svc, _, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	secret := []byte(testAuthCfg().JWTSecret)
	uid := uuid.New()
	now := time.Now().UTC()

	baseClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"uid":   uid.String(),
			"email": "a@b.c",
			"role":  string(models.RoleUser),
			"iss":   testAuthCfg().Issuer,
			"sub":   uid.String(),
			"aud":   testAuthCfg().Audience,
			"exp":   now.Add(testAuthCfg().AccessTokenTTL).Unix(),
			"iat":   now.Unix(),
		}
	}

	t.Run("wrong alg", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, baseClaims())
		signed, err := token.SignedString(secret)
		require.NoError(t, err)

		// Недопустимый алгоритм отсекает WithValidMethods ещё до keyfunc.
		_, err = svc.VerifyAccessToken(signed)
		require.Error(t, err)
		require.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := baseClaims()
		claims["iss"] = "another-issuer"
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString(secret)
		require.NoError(t, err)

		_, err = svc.VerifyAccessToken(signed)
		require.Error(t, err)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := baseClaims()
		claims["aud"] = []string{"unexpected-aud"}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString(secret)
		require.NoError(t, err)

		_, err = svc.VerifyAccessToken(signed)
		require.Error(t, err)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	svc, _, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	cfg := testAuthCfg()
	cfg.AccessTokenTTL = -10 * time.Second
	svc.cfg = cfg

	user := testUser()
	now := time.Now().UTC()

	at, err := svc.generateAccessToken(context.Background(), user, now)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(at)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTokenExpired)
}

// Граница TTL строгая: токен с exp=now+60s невалиден спустя 61 секунду.
func TestVerifyAccessToken_TTLBoundary(t *testing.T) {
	svc, _, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	cfg := testAuthCfg()
	cfg.AccessTokenTTL = 60 * time.Second
	svc.cfg = cfg

	user := testUser()

	// Выпущен 61 секунду назад при TTL 60s: уже истёк, без leeway.
	issuedAt := time.Now().UTC().Add(-61 * time.Second)

	at, err := svc.generateAccessToken(context.Background(), user, issuedAt)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(at)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyAccessToken_Malformed(t *testing.T) {
	svc, _, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	_, err := svc.VerifyAccessToken("not-a-jwt")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerifyAccessToken_BadSignature(t *testing.T) {
	svc, _, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	user := testUser()
	now := time.Now().UTC()

	at, err := svc.generateAccessToken(context.Background(), user, now)
	require.NoError(t, err)

	other := New(mocks.NewMockStorage(gomock.NewController(t)), config.AuthConfig{
		JWTSecret:       "another-secret-key-0123456789abcdef",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Issuer:          testAuthCfg().Issuer,
		Audience:        testAuthCfg().Audience,
	}, testInviteCfg())

	_, err = other.VerifyAccessToken(at)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyAccessToken_InvalidUIDClaim(t *testing.T) {
	svc, _, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	secret := []byte(testAuthCfg().JWTSecret)
	now := time.Now().UTC()

	claims := jwt.MapClaims{
		"uid":   "not-a-uuid",
		"email": "a@b.c",
		"role":  string(models.RoleUser),
		"iss":   testAuthCfg().Issuer,
		"sub":   "not-a-uuid",
		"aud":   testAuthCfg().Audience,
		"exp":   now.Add(testAuthCfg().AccessTokenTTL).Unix(),
		"iat":   now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(signed)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAccessToken_InvalidRoleClaim(t *testing.T) {
	svc, _, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	secret := []byte(testAuthCfg().JWTSecret)
	uid := uuid.New()
	now := time.Now().UTC()

	claims := jwt.MapClaims{
		"uid":   uid.String(),
		"email": "a@b.c",
		"role":  "SUPERUSER",
		"iss":   testAuthCfg().Issuer,
		"sub":   uid.String(),
		"aud":   testAuthCfg().Audience,
		"exp":   now.Add(testAuthCfg().AccessTokenTTL).Unix(),
		"iat":   now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(signed)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateRefreshToken_SavesHash_AndRespectsTTL(t *testing.T) {
	svc, mockSt, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	ctx := context.Background()
	uid := uuid.New()
	now := time.Now().UTC()

	var saved *models.RefreshToken
	mockSt.
		EXPECT().
		SaveRefreshToken(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rt *models.RefreshToken) error {
			saved = rt
			return nil
		})

	plain, err := svc.generateRefreshToken(ctx, uid, now)
	require.NoError(t, err)
	require.NotEmpty(t, plain)

	// В хранилище уходит только хэш, не сам секрет.
	sum := sha256.Sum256([]byte(plain))
	expectedHash := base64.RawURLEncoding.EncodeToString(sum[:])
	require.Equal(t, expectedHash, saved.RefreshTokenHash)
	require.NotEqual(t, plain, saved.RefreshTokenHash)

	require.Equal(t, now.Add(svc.cfg.RefreshTokenTTL), saved.ExpiresAt)
	require.Equal(t, uid, saved.UserID)
	require.False(t, saved.Revoked)

	// Секрет кодирует не меньше 48 случайных байт.
	raw, err := base64.RawURLEncoding.DecodeString(plain)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), 48)
}

func TestGenerateRefreshToken_CollisionRetries_ThenSuccess(t *testing.T) {
	svc, mockSt, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	ctx := context.Background()
	uid := uuid.New()
	now := time.Now().UTC()

	gomock.InOrder(
		mockSt.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists),
		mockSt.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil),
	)

	plain, err := svc.generateRefreshToken(ctx, uid, now)
	require.NoError(t, err)
	require.NotEmpty(t, plain)
}

func TestGenerateRefreshToken_CollisionExhausted(t *testing.T) {
	svc, mockSt, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	mockSt.
		EXPECT().
		SaveRefreshToken(gomock.Any(), gomock.Any()).
		Return(storage.ErrAlreadyExists).
		Times(5)

	_, err := svc.generateRefreshToken(context.Background(), uuid.New(), time.Now().UTC())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRefreshTokenCollision)
}

func TestValidateRefreshToken_NotFound_Revoked_Expired(t *testing.T) {
	svc, mockSt, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	ctx := context.Background()
	now := time.Now().UTC()
	uid := uuid.New()

	t.Run("not found", func(t *testing.T) {
		mockSt.EXPECT().RefreshTokenByHash(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound)

		_, err := svc.validateRefreshToken(ctx, "missing-token", now)
		require.Error(t, err)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("revoked", func(t *testing.T) {
		mockSt.EXPECT().RefreshTokenByHash(gomock.Any(), gomock.Any()).Return(&models.RefreshToken{
			UserID:    uid,
			ExpiresAt: now.Add(time.Hour),
			Revoked:   true,
		}, nil)

		_, err := svc.validateRefreshToken(ctx, "revoked-token", now)
		require.Error(t, err)
		require.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("expired", func(t *testing.T) {
		mockSt.EXPECT().RefreshTokenByHash(gomock.Any(), gomock.Any()).Return(&models.RefreshToken{
			UserID:    uid,
			ExpiresAt: now.Add(-time.Minute),
			Revoked:   false,
		}, nil)

		_, err := svc.validateRefreshToken(ctx, "expired-token", now)
		require.Error(t, err)
		require.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("storage error passthrough", func(t *testing.T) {
		dbErr := errors.New("db down")
		mockSt.EXPECT().RefreshTokenByHash(gomock.Any(), gomock.Any()).Return(nil, dbErr)

		_, err := svc.validateRefreshToken(ctx, "any-token", now)
		require.Error(t, err)
		require.ErrorIs(t, err, dbErr)
		require.NotErrorIs(t, err, ErrInvalidToken)
	})
}
