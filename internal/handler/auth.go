package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/world-gallery/internal/domain"
	"github.com/world-gallery/internal/service"
)

// isFormRequest reports whether the body was posted by an HTML form
func isFormRequest(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	return strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data")
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, r *http.Request, session *domain.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.auth.CookieName,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.auth.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// Login signs in with email and password, from JSON or a form
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	form := isFormRequest(r)
	if form {
		if err := r.ParseForm(); err != nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		creds.Email = r.PostFormValue("email")
		creds.Password = r.PostFormValue("password")
	} else if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if creds.Email == "" || creds.Password == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result := h.reflector.Login(r.Context(), creds.Email, creds.Password)
	if result.Error != nil {
		if errors.Is(result.Error, domain.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, domain.ErrInvalidCredentials)
			return
		}
		h.logger.Error("failed to sign in", "error", result.Error)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.setSessionCookie(w, r, result.Data)
	if form {
		http.Redirect(w, r, h.pages.LandingPath, http.StatusSeeOther)
		return
	}
	h.writeSuccess(w, result.Data)
}

// Logout signs the session out and sends the browser to the landing page.
// When sign-out fails the session cookie is kept and no redirect happens.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.token(r)
	if token == "" {
		h.writeError(w, http.StatusUnauthorized, domain.ErrNotAuthenticated)
		return
	}

	rec := service.NewRecorder()
	if err := h.reflector.Logout(r.Context(), token, rec); err != nil {
		if errors.Is(err, domain.ErrNotAuthenticated) {
			h.clearSessionCookie(w, r)
			h.writeError(w, http.StatusUnauthorized, domain.ErrNotAuthenticated)
			return
		}
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.clearSessionCookie(w, r)
	if isFormRequest(r) {
		http.Redirect(w, r, rec.NavigateTo, http.StatusSeeOther)
		return
	}
	h.writeSuccess(w, map[string]string{"redirect": rec.NavigateTo})
}

// CurrentUser returns the signed-in user
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user := h.gallery.CurrentUser(r.Context(), h.token(r))
	if user == nil {
		h.writeError(w, http.StatusUnauthorized, domain.ErrNotAuthenticated)
		return
	}
	h.writeSuccess(w, user)
}
