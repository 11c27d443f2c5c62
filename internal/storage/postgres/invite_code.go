package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/makeit-app/auth-service/internal/models"
	"github.com/makeit-app/auth-service/internal/storage"
)

// SaveInviteCode сохраняет новый код приглашения.
func (s *Storage) SaveInviteCode(ctx context.Context, invite *models.InviteCode) error {
	const op = "storage.postgres.SaveInviteCode"

	query := `
		INSERT INTO invite_codes(id, code, created_by_user_id, used_by_user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.Exec(ctx, query,
		invite.ID,
		invite.Code,
		invite.CreatedBy,
		invite.UsedBy,
		invite.ExpiresAt,
		invite.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// InviteCodeByCode находит код приглашения по строковому значению.
func (s *Storage) InviteCodeByCode(ctx context.Context, code string) (*models.InviteCode, error) {
	const op = "storage.postgres.InviteCodeByCode"

	query := `
		SELECT id, code, created_by_user_id, used_by_user_id, expires_at, created_at
		FROM invite_codes
		WHERE code = $1
	`

	var invite models.InviteCode
	err := s.db.QueryRow(ctx, query, code).Scan(
		&invite.ID,
		&invite.Code,
		&invite.CreatedBy,
		&invite.UsedBy,
		&invite.ExpiresAt,
		&invite.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &invite, nil
}

// MarkInviteCodeUsed атомарно потребляет код приглашения.
// Условный UPDATE гарантирует, что из двух конкурентных регистраций
// по одному коду ровно одна пометит его использованным.
//
// Возвращает:
//
//	(true, nil)  — код был свободен и потреблён сейчас;
//	(false, nil) — код уже был потреблён ранее;
//	(false, ErrNotFound) — код не найден.
func (s *Storage) MarkInviteCodeUsed(ctx context.Context, id uuid.UUID, usedBy uuid.UUID) (bool, error) {
	const op = "storage.postgres.MarkInviteCodeUsed"

	const upd = `
		UPDATE invite_codes
		SET used_by_user_id = $2
		WHERE id = $1 AND used_by_user_id IS NULL
		RETURNING code
	`

	var code string
	err := s.db.QueryRow(ctx, upd, id, usedBy).Scan(&code)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	const sel = `
		SELECT used_by_user_id IS NOT NULL
		FROM invite_codes
		WHERE id = $1
	`

	var used bool
	err = s.db.QueryRow(ctx, sel, id).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// InvitesByCreator возвращает коды приглашений, созданные пользователем (новые первыми).
func (s *Storage) InvitesByCreator(ctx context.Context, userID uuid.UUID) ([]models.InviteCode, error) {
	const op = "storage.postgres.InvitesByCreator"

	query := `
		SELECT id, code, created_by_user_id, used_by_user_id, expires_at, created_at
		FROM invite_codes
		WHERE created_by_user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var invites []models.InviteCode
	for rows.Next() {
		var invite models.InviteCode
		if err := rows.Scan(
			&invite.ID,
			&invite.Code,
			&invite.CreatedBy,
			&invite.UsedBy,
			&invite.ExpiresAt,
			&invite.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		invites = append(invites, invite)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return invites, nil
}

// DeleteExpiredInvites удаляет просроченные непотреблённые коды.
// Потреблённые записи не трогаем: использованный код обязан
// оставаться использованным.
func (s *Storage) DeleteExpiredInvites(ctx context.Context, now time.Time) error {
	const op = "storage.postgres.DeleteExpiredInvites"

	query := `
		DELETE FROM invite_codes
		WHERE used_by_user_id IS NULL AND expires_at <= $1
	`

	_, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
