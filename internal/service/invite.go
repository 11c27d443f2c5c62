package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/makeit-app/auth-service/internal/models"
	"github.com/makeit-app/auth-service/internal/storage"
	"github.com/makeit-app/auth-service/pkg/log"
)

const (
	// inviteCodeAlphabet — алфавит кодов без визуально неоднозначных символов (0/O, 1/I/l).
	// 32 символа: ровно делит 256, так что выборка по байту без смещения.
	inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	inviteCodeLength   = 8
)

// CreateInvite создаёт новый код приглашения от имени пользователя.
// ttl <= 0 означает срок по умолчанию из конфигурации.
func (s *Service) CreateInvite(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*models.InviteCode, error) {
	const (
		op          = "service.invite.CreateInvite"
		maxAttempts = 10
	)

	lg := log.From(ctx)

	if _, err := s.storage.UserByID(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if ttl <= 0 {
		ttl = s.invites.CodeTTL
	}

	now := time.Now().UTC()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := randomInviteCode()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		invite := &models.InviteCode{
			ID:        uuid.New(),
			Code:      code,
			CreatedBy: userID,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}

		if err := s.storage.SaveInviteCode(ctx, invite); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Коллизия кода — пробуем ещё раз.
				continue
			}

			return nil, fmt.Errorf("%s: %w", op, err)
		}

		lg.Info("invite_created",
			slog.String("op", op),
			slog.String("invite_id", invite.ID.String()),
			slog.String("user_id", userID.String()),
		)

		return invite, nil
	}

	lg.Error("invite_collision_exceeded",
		slog.String("op", op),
	)

	return nil, fmt.Errorf("%s: %w", op, ErrInviteCodeCollision)
}

// ListUserInvites возвращает коды приглашений, созданные пользователем.
func (s *Service) ListUserInvites(ctx context.Context, userID uuid.UUID) ([]models.InviteCode, error) {
	const op = "service.invite.ListUserInvites"

	invites, err := s.storage.InvitesByCreator(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return invites, nil
}

// CheckInviteCode проверяет код приглашения без его потребления
// (публичная проверка перед регистрацией).
// nil — код валиден; иначе ErrInviteInvalid/ErrInviteExpired/ErrInviteUsed.
func (s *Service) CheckInviteCode(ctx context.Context, code string) error {
	const op = "service.invite.CheckInviteCode"

	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%s: %w", op, ErrInviteInvalid)
	}

	if s.invites.BootstrapCode != "" && code == s.invites.BootstrapCode {
		return nil
	}

	invite, err := s.storage.InviteCodeByCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInviteInvalid)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()

	if now.After(invite.ExpiresAt) {
		return fmt.Errorf("%s: %w", op, ErrInviteExpired)
	}

	if invite.Used() {
		return fmt.Errorf("%s: %w", op, ErrInviteUsed)
	}

	return nil
}

// randomInviteCode генерирует случайный код из inviteCodeAlphabet.
func randomInviteCode() (string, error) {
	b := make([]byte, inviteCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	out := make([]byte, inviteCodeLength)
	for i, v := range b {
		out[i] = inviteCodeAlphabet[int(v)%len(inviteCodeAlphabet)]
	}

	return string(out), nil
}
