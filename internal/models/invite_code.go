package models

import (
	"time"

	"github.com/google/uuid"
)

// InviteCode — одноразовый код приглашения для регистрации.
//
// Код действителен, пока UsedBy == nil и now < ExpiresAt; после
// установки UsedBy он считается потреблённым навсегда. Bootstrap-код
// задаётся конфигурацией и записью в БД не представлен.
type InviteCode struct {
	ID        uuid.UUID
	Code      string
	CreatedBy uuid.UUID
	UsedBy    *uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Used сообщает, был ли код уже потреблён.
func (c *InviteCode) Used() bool {
	return c.UsedBy != nil
}
