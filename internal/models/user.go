package models

import (
	"time"

	"github.com/google/uuid"
)

// Role — роль пользователя в системе. Закрытый двухвариантный enum:
// полномочия проверяются по значению, без иерархий типов.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid сообщает, является ли значение одной из известных ролей.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User — модель пользователя в системе.
//
// Email хранится в нормализованном виде (trim + lowercase);
// на уровне БД уникальность обеспечивается citext-колонкой.
// Disabled-аккаунт (Enabled=false) не может логиниться и обновлять токены.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	DisplayName  string
	Role         Role
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
