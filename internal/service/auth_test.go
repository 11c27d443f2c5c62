package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/makeit-app/auth-service/internal/models"
	"github.com/makeit-app/auth-service/internal/storage"
)

func mustHashPW(t *testing.T, pw string) string {
	t.Helper()
	h, err := hashPassword(pw)
	require.NoError(t, err)
	return h
}

func activeInvite(creator uuid.UUID) *models.InviteCode {
	now := time.Now().UTC()
	return &models.InviteCode{
		ID:        uuid.New(),
		Code:      "ABCD2345",
		CreatedBy: creator,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now.Add(-time.Hour),
	}
}

func TestRegisterUser_OK_ConsumesInvite(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	ctx := context.Background()
	email := "User@Example.com"
	norm := "user@example.com"
	pw := "Abcdef1!"
	invite := activeInvite(uuid.New())

	var savedUser *models.User
	gomock.InOrder(
		st.EXPECT().UserByEmail(gomock.Any(), norm).Return(nil, storage.ErrNotFound),
		st.EXPECT().InviteCodeByCode(gomock.Any(), invite.Code).Return(invite, nil),
		st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, u *models.User) error {
				savedUser = u
				return nil
			}),
		st.EXPECT().MarkInviteCodeUsed(gomock.Any(), invite.ID, gomock.Any()).Return(true, nil),
		st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil),
	)

	pair, user, err := svc.RegisterUser(ctx, email, pw, "  New User  ", invite.Code)
	require.NoError(t, err)
	require.NotNil(t, pair)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	require.Equal(t, norm, user.Email)
	require.Equal(t, "New User", user.DisplayName)
	require.Equal(t, models.RoleUser, user.Role)
	require.True(t, user.Enabled)
	require.True(t, checkPassword(user.PasswordHash, pw))
	require.Equal(t, savedUser.ID, user.ID)

	// Access-токен сразу проходит проверку и несёт идентичность нового пользователя.
	p, err := svc.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, p.UserID)
	require.Equal(t, models.RoleUser, p.Role)
}

func TestRegisterUser_Bootstrap_NoInviteRows(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	// Bootstrap-код проходит без InviteCodeByCode и без MarkInviteCodeUsed.
	gomock.InOrder(
		st.EXPECT().UserByEmail(gomock.Any(), "first@example.com").Return(nil, storage.ErrNotFound),
		st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil),
		st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil),
	)

	pair, user, err := svc.RegisterUser(context.Background(), "first@example.com", "Abcdef1!", "First", "BOOTSTRAP-CODE")
	require.NoError(t, err)
	require.NotNil(t, pair)
	require.NotNil(t, user)
}

func TestRegisterUser_InviteNotRequired(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	inv := testInviteCfg()
	inv.Required = false
	svc.invites = inv

	gomock.InOrder(
		st.EXPECT().UserByEmail(gomock.Any(), "open@example.com").Return(nil, storage.ErrNotFound),
		st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil),
		st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil),
	)

	_, _, err := svc.RegisterUser(context.Background(), "open@example.com", "Abcdef1!", "Open", "")
	require.NoError(t, err)
}

func TestRegisterUser_InviteErrors(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	ctx := context.Background()
	norm := "user@example.com"

	t.Run("missing code", func(t *testing.T) {
		st.EXPECT().UserByEmail(gomock.Any(), norm).Return(nil, storage.ErrNotFound)

		_, _, err := svc.RegisterUser(ctx, norm, "Abcdef1!", "User", "   ")
		require.ErrorIs(t, err, ErrInviteRequired)
	})

	t.Run("unknown code", func(t *testing.T) {
		st.EXPECT().UserByEmail(gomock.Any(), norm).Return(nil, storage.ErrNotFound)
		st.EXPECT().InviteCodeByCode(gomock.Any(), "NOPE2345").Return(nil, storage.ErrNotFound)

		_, _, err := svc.RegisterUser(ctx, norm, "Abcdef1!", "User", "NOPE2345")
		require.ErrorIs(t, err, ErrInviteInvalid)
	})

	t.Run("expired code", func(t *testing.T) {
		invite := activeInvite(uuid.New())
		invite.ExpiresAt = time.Now().UTC().Add(-time.Minute)

		st.EXPECT().UserByEmail(gomock.Any(), norm).Return(nil, storage.ErrNotFound)
		st.EXPECT().InviteCodeByCode(gomock.Any(), invite.Code).Return(invite, nil)

		_, _, err := svc.RegisterUser(ctx, norm, "Abcdef1!", "User", invite.Code)
		require.ErrorIs(t, err, ErrInviteExpired)
	})

	t.Run("used code", func(t *testing.T) {
		invite := activeInvite(uuid.New())
		usedBy := uuid.New()
		invite.UsedBy = &usedBy

		st.EXPECT().UserByEmail(gomock.Any(), norm).Return(nil, storage.ErrNotFound)
		st.EXPECT().InviteCodeByCode(gomock.Any(), invite.Code).Return(invite, nil)

		_, _, err := svc.RegisterUser(ctx, norm, "Abcdef1!", "User", invite.Code)
		require.ErrorIs(t, err, ErrInviteUsed)
	})
}

// Два конкурентных регистранта с одним кодом: проигравший условный UPDATE
// получает ErrInviteUsed и не получает токенов.
func TestRegisterUser_InviteLostRace(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	invite := activeInvite(uuid.New())

	gomock.InOrder(
		st.EXPECT().UserByEmail(gomock.Any(), "late@example.com").Return(nil, storage.ErrNotFound),
		st.EXPECT().InviteCodeByCode(gomock.Any(), invite.Code).Return(invite, nil),
		st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil),
		st.EXPECT().MarkInviteCodeUsed(gomock.Any(), invite.ID, gomock.Any()).Return(false, nil),
	)

	pair, user, err := svc.RegisterUser(context.Background(), "late@example.com", "Abcdef1!", "Late", invite.Code)
	require.ErrorIs(t, err, ErrInviteUsed)
	require.Nil(t, pair)
	require.Nil(t, user)
}

func TestRegisterUser_EmailTaken(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	ctx := context.Background()

	t.Run("precheck", func(t *testing.T) {
		st.EXPECT().UserByEmail(gomock.Any(), "taken@example.com").Return(testUser(), nil)

		_, _, err := svc.RegisterUser(ctx, "taken@example.com", "Abcdef1!", "User", "BOOTSTRAP-CODE")
		require.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("unique violation on save", func(t *testing.T) {
		gomock.InOrder(
			st.EXPECT().UserByEmail(gomock.Any(), "race@example.com").Return(nil, storage.ErrNotFound),
			st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists),
		)

		_, _, err := svc.RegisterUser(ctx, "race@example.com", "Abcdef1!", "User", "BOOTSTRAP-CODE")
		require.ErrorIs(t, err, ErrEmailTaken)
	})
}

func TestRegisterUser_ValidationErrors(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	ctx := context.Background()

	cases := []struct {
		name        string
		email       string
		pw          string
		displayName string
		wantErr     error
	}{
		{"bad email", "not-an-email", "Abcdef1!", "User", ErrInvalidEmail},
		{"empty password", "u@example.com", "", "User", ErrEmptyPassword},
		{"short password", "u@example.com", "Ab1!", "User", ErrWeakPassword},
		{"no special char", "u@example.com", "Abcdefg1", "User", ErrWeakPassword},
		{"no digit", "u@example.com", "Abcdefg!", "User", ErrWeakPassword},
		{"empty display name", "u@example.com", "Abcdef1!", "   ", ErrInvalidDisplayName},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.RegisterUser(ctx, tc.email, tc.pw, tc.displayName, "BOOTSTRAP-CODE")
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestLoginUser_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	pw := "Abcdef1!"
	user := testUser()
	user.PasswordHash = mustHashPW(t, pw)

	gomock.InOrder(
		st.EXPECT().UserByEmail(gomock.Any(), user.Email).Return(user, nil),
		st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil),
	)

	pair, got, err := svc.LoginUser(context.Background(), "User@Example.com", pw)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, user.ID, got.ID)
}

// Неизвестный email и неверный пароль неразличимы для клиента.
func TestLoginUser_InvalidCredentials_Uniform(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	ctx := context.Background()

	t.Run("unknown email", func(t *testing.T) {
		st.EXPECT().UserByEmail(gomock.Any(), "ghost@example.com").Return(nil, storage.ErrNotFound)

		_, _, err := svc.LoginUser(ctx, "ghost@example.com", "Abcdef1!")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		user := testUser()
		user.PasswordHash = mustHashPW(t, "Correct1!")
		st.EXPECT().UserByEmail(gomock.Any(), user.Email).Return(user, nil)

		_, _, err := svc.LoginUser(ctx, user.Email, "Wrong1!!!")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("malformed email", func(t *testing.T) {
		_, _, err := svc.LoginUser(ctx, "not-an-email", "Abcdef1!")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("empty password", func(t *testing.T) {
		_, _, err := svc.LoginUser(ctx, "ok@example.com", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestLoginUser_DisabledAccount(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	pw := "Abcdef1!"
	user := testUser()
	user.PasswordHash = mustHashPW(t, pw)
	user.Enabled = false

	st.EXPECT().UserByEmail(gomock.Any(), user.Email).Return(user, nil)

	_, _, err := svc.LoginUser(context.Background(), user.Email, pw)
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestRefreshTokens_OK_RotatesOld(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	user := testUser()
	plain := "the-refresh-secret"
	hash := hashRefreshSecret(plain)

	stored := &models.RefreshToken{
		RefreshTokenHash: hash,
		UserID:           user.ID,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
		Revoked:          false,
	}

	gomock.InOrder(
		st.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(stored, nil),
		st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil),
		st.EXPECT().RevokeRefreshTokenIfActive(gomock.Any(), hash).Return(true, nil),
		st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil),
	)

	pair, got, err := svc.RefreshTokens(context.Background(), plain)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEqual(t, plain, pair.RefreshToken)
}

// Проигравшая конкурентная ротация не получает токенов.
func TestRefreshTokens_RotationLost(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	user := testUser()
	plain := "contested-secret"
	hash := hashRefreshSecret(plain)

	stored := &models.RefreshToken{
		RefreshTokenHash: hash,
		UserID:           user.ID,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}

	gomock.InOrder(
		st.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(stored, nil),
		st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil),
		st.EXPECT().RevokeRefreshTokenIfActive(gomock.Any(), hash).Return(false, nil),
	)

	pair, _, err := svc.RefreshTokens(context.Background(), plain)
	require.ErrorIs(t, err, ErrTokenRevoked)
	require.Nil(t, pair)
}

// Отключённый аккаунт: отказ до условного отзыва, токен не потребляется.
func TestRefreshTokens_DisabledAccount_DoesNotConsume(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	user := testUser()
	user.Enabled = false
	plain := "disabled-secret"
	hash := hashRefreshSecret(plain)

	stored := &models.RefreshToken{
		RefreshTokenHash: hash,
		UserID:           user.ID,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}

	// RevokeRefreshTokenIfActive не ожидается вовсе.
	gomock.InOrder(
		st.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(stored, nil),
		st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil),
	)

	_, _, err := svc.RefreshTokens(context.Background(), plain)
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestRefreshTokens_UserGone(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	uid := uuid.New()
	plain := "orphan-secret"
	hash := hashRefreshSecret(plain)

	stored := &models.RefreshToken{
		RefreshTokenHash: hash,
		UserID:           uid,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
	}

	gomock.InOrder(
		st.EXPECT().RefreshTokenByHash(gomock.Any(), hash).Return(stored, nil),
		st.EXPECT().UserByID(gomock.Any(), uid).Return(nil, storage.ErrNotFound),
	)

	_, _, err := svc.RefreshTokens(context.Background(), plain)
	require.ErrorIs(t, err, ErrInvalidToken)
}

// Ошибка хранилища не принимает вид ошибки аутентификации.
func TestRefreshTokens_TransientStorageError(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	dbErr := errors.New("connection reset")
	st.EXPECT().RefreshTokenByHash(gomock.Any(), gomock.Any()).Return(nil, dbErr)

	_, _, err := svc.RefreshTokens(context.Background(), "any-secret")
	require.ErrorIs(t, err, dbErr)
	require.NotErrorIs(t, err, ErrInvalidToken)
	require.NotErrorIs(t, err, ErrTokenRevoked)
}

func TestLogout_RevokesAll_Idempotent(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	uid := uuid.New()

	gomock.InOrder(
		st.EXPECT().RevokeAllByUser(gomock.Any(), uid).Return(int64(3), nil),
		st.EXPECT().RevokeAllByUser(gomock.Any(), uid).Return(int64(0), nil),
	)

	count, err := svc.Logout(context.Background(), uid)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	count, err = svc.Logout(context.Background(), uid)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestUserByID_NotFound(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newServiceWithMock(t)
	defer ctrl.Finish()

	uid := uuid.New()
	st.EXPECT().UserByID(gomock.Any(), uid).Return(nil, storage.ErrNotFound)

	_, err := svc.UserByID(context.Background(), uid)
	require.ErrorIs(t, err, ErrUserNotFound)
}
