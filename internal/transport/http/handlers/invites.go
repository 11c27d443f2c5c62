package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/makeit-app/auth-service/internal/service"
	"github.com/makeit-app/auth-service/internal/transport/http/httperr"
	"github.com/makeit-app/auth-service/internal/transport/http/middleware"
)

// maxInviteTTLDays — верхняя граница явного срока жизни кода.
const maxInviteTTLDays = 365

func (h *Handlers) CreateInvite(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httperr.WriteError(w, r, httperr.ErrUnauthenticated)
		return
	}

	var in createInviteRequest
	if r.ContentLength > 0 {
		if err := decodeStrict(r, &in); err != nil {
			httperr.WriteError(w, r, httperr.ErrBadRequest)
			return
		}
	}

	if in.ExpiresInDays < 0 || in.ExpiresInDays > maxInviteTTLDays {
		httperr.WriteError(w, r, httperr.ErrBadRequest)
		return
	}

	// 0 — срок по умолчанию из конфигурации.
	ttl := time.Duration(in.ExpiresInDays) * 24 * time.Hour

	invite, err := h.Svc.CreateInvite(r.Context(), p.UserID, ttl)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, inviteToView(invite))
}

func (h *Handlers) ListInvites(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httperr.WriteError(w, r, httperr.ErrUnauthenticated)
		return
	}

	invites, err := h.Svc.ListUserInvites(r.Context(), p.UserID)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	out := make([]inviteView, 0, len(invites))
	for i := range invites {
		out = append(out, inviteToView(&invites[i]))
	}

	writeJSON(w, http.StatusOK, out)
}

// ValidateInvite — публичная проверка кода перед регистрацией.
// Невалидный код — это ответ 200 {valid:false}, а не ошибка:
// фронт показывает подсказку прямо в форме.
func (h *Handlers) ValidateInvite(w http.ResponseWriter, r *http.Request) {
	var in validateInviteRequest
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteError(w, r, httperr.ErrBadRequest)
		return
	}

	err := h.Svc.CheckInviteCode(r.Context(), in.Code)
	if err == nil {
		writeJSON(w, http.StatusOK, validateInviteResponse{Valid: true})
		return
	}

	msg, ok := inviteFailureMessage(err)
	if !ok {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validateInviteResponse{Valid: false, Message: msg})
}

func inviteFailureMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, service.ErrInviteInvalid):
		return "invalid invite code", true
	case errors.Is(err, service.ErrInviteExpired):
		return "invite code expired", true
	case errors.Is(err, service.ErrInviteUsed):
		return "invite code already used", true
	default:
		return "", false
	}
}
