package models

import "github.com/google/uuid"

// Principal — идентичность аутентифицированного запроса.
//
// Формируется из проверенного access-токена и передаётся явно
// (через параметры/контекст запроса), без глобального состояния.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}

// IsAdmin сообщает, обладает ли субъект административной ролью.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
