package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/makeit-app/auth-service/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен/инвайт).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/refresh-token/код инвайта).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (регистронезависимо).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-token в БД.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByHash находит refresh-токен по его хэшу.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// RevokeRefreshTokenIfActive пытается отозвать refresh-токен, если он ещё не был отозван.
	// Это единственная точка сериализации конкурентных ротаций одного токена:
	//   (true, nil)  — токен был активен и отозван сейчас (ротация выиграна);
	//   (false, nil) — токен уже был отозван ранее (ротация проиграна/повторное предъявление);
	//   (false, ErrNotFound) — токен не найден.
	RevokeRefreshTokenIfActive(ctx context.Context, hash string) (bool, error)
	// RevokeAllByUser помечает отозванными все активные токены пользователя.
	// Возвращает число затронутых записей; повторный вызов — no-op (0, nil).
	RevokeAllByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	// DeleteExpiredTokens удаляет все просроченные токены.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

// InviteCodeStorage выполняет операции над кодами приглашений.
type InviteCodeStorage interface {
	// SaveInviteCode сохраняет новый код приглашения.
	SaveInviteCode(ctx context.Context, invite *models.InviteCode) error
	// InviteCodeByCode находит код приглашения по его строковому значению.
	InviteCodeByCode(ctx context.Context, code string) (*models.InviteCode, error)
	// MarkInviteCodeUsed атомарно помечает код потреблённым указанным пользователем.
	//   (true, nil)  — код был свободен и потреблён сейчас;
	//   (false, nil) — код уже был потреблён ранее;
	//   (false, ErrNotFound) — код не найден.
	MarkInviteCodeUsed(ctx context.Context, id uuid.UUID, usedBy uuid.UUID) (bool, error)
	// InvitesByCreator возвращает коды, созданные пользователем (новые первыми).
	InvitesByCreator(ctx context.Context, userID uuid.UUID) ([]models.InviteCode, error)
	// DeleteExpiredInvites удаляет просроченные НЕпотреблённые коды.
	// Потреблённые записи сохраняются: код, бывший использованным, не должен
	// снова стать валидным.
	DeleteExpiredInvites(ctx context.Context, now time.Time) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	InviteCodeStorage
	Close()
}
