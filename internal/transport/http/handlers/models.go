// Входные/выходные модели REST-слоя.
package handlers

import (
	"time"

	"github.com/makeit-app/auth-service/internal/models"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	InviteCode  string `json:"invite_code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type validateInviteRequest struct {
	Code string `json:"code"`
}

type createInviteRequest struct {
	ExpiresInDays int `json:"expires_in_days,omitempty"`
}

type userView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Enabled     bool   `json:"enabled"`
	CreatedAt   int64  `json:"created_at"` // Unix UTC
}

// authResponse — ответ register/login/refresh.
// ExpiresIn — срок жизни access-токена в секундах с момента выпуска.
type authResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         userView `json:"user"`
}

type inviteView struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	CreatedBy string `json:"created_by"`
	UsedBy    string `json:"used_by,omitempty"`
	ExpiresAt int64  `json:"expires_at"` // Unix UTC
	CreatedAt int64  `json:"created_at"` // Unix UTC
	Used      bool   `json:"used"`
}

type validateInviteResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

func userToView(u *models.User) userView {
	return userView{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		Enabled:     u.Enabled,
		CreatedAt:   u.CreatedAt.Unix(),
	}
}

func authToResponse(pair *models.TokenPair, user *models.User) authResponse {
	expiresIn := int64(time.Until(pair.AccessExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}

	return authResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		User:         userToView(user),
	}
}

func inviteToView(inv *models.InviteCode) inviteView {
	out := inviteView{
		ID:        inv.ID.String(),
		Code:      inv.Code,
		CreatedBy: inv.CreatedBy.String(),
		ExpiresAt: inv.ExpiresAt.Unix(),
		CreatedAt: inv.CreatedAt.Unix(),
		Used:      inv.Used(),
	}
	if inv.UsedBy != nil {
		out.UsedBy = inv.UsedBy.String()
	}

	return out
}
