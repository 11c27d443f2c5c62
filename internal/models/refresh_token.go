package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — серверная запись refresh-токена.
//
// Сам секрет клиенту выдаётся один раз и нигде не сохраняется:
// в БД лежит только его хэш (sha256 → base64url). Токен действителен,
// пока !Revoked и now < ExpiresAt; ротация помечает старую запись
// отозванной и создаёт новую в рамках одного запроса.
type RefreshToken struct {
	RefreshTokenHash string
	UserID           uuid.UUID
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Revoked          bool
}
