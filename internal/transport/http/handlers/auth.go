package handlers

import (
	"net/http"

	"github.com/makeit-app/auth-service/internal/transport/http/httperr"
	"github.com/makeit-app/auth-service/internal/transport/http/middleware"
)

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteError(w, r, httperr.ErrBadRequest)
		return
	}

	pair, user, err := h.Svc.RegisterUser(r.Context(), in.Email, in.Password, in.DisplayName, in.InviteCode)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authToResponse(pair, user))
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteError(w, r, httperr.ErrBadRequest)
		return
	}

	pair, user, err := h.Svc.LoginUser(r.Context(), in.Email, in.Password)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authToResponse(pair, user))
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil {
		httperr.WriteError(w, r, httperr.ErrBadRequest)
		return
	}

	if in.RefreshToken == "" {
		httperr.WriteError(w, r, httperr.ErrBadRequest)
		return
	}

	pair, user, err := h.Svc.RefreshTokens(r.Context(), in.RefreshToken)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authToResponse(pair, user))
}

// Logout отзывает все refresh-токены текущего пользователя. Идемпотентен.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httperr.WriteError(w, r, httperr.ErrUnauthenticated)
		return
	}

	if _, err := h.Svc.Logout(r.Context(), p.UserID); err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me возвращает профиль текущего пользователя по access-токену.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httperr.WriteError(w, r, httperr.ErrUnauthenticated)
		return
	}

	user, err := h.Svc.UserByID(r.Context(), p.UserID)
	if err != nil {
		httperr.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userToView(user))
}
