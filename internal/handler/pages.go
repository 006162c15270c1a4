package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/world-gallery/internal/domain"
	"github.com/world-gallery/internal/service"
	"github.com/world-gallery/internal/view"
)

// GalleryPage renders the full page for the request's session
func (h *Handler) GalleryPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := h.token(r)

	rec := service.NewRecorder()
	// A failed load has already rendered the error message into the grid.
	_ = h.gallery.NewView(rec, token).LoadWorlds(ctx)

	var user *domain.User
	if h.reflector.UpdateAuthUI(ctx, token, rec) {
		user = h.gallery.CurrentUser(ctx, token)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := h.renderer.Page(w, view.PageData{
		Grid:          rec.Grid,
		Authenticated: rec.IsAuthenticated(),
		User:          user,
		LoginPath:     h.pages.LoginPath,
	})
	if err != nil {
		h.logger.Error("failed to render page", "error", err)
	}
}

// WorldsFragment renders only the grid, for clients that swap it in place
func (h *Handler) WorldsFragment(w http.ResponseWriter, r *http.Request) {
	rec := service.NewRecorder()
	_ = h.gallery.NewView(rec, h.token(r)).LoadWorlds(r.Context())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(rec.Grid)); err != nil {
		h.logger.Warn("failed to write grid", "error", err)
	}
}

// DownloadWorld redirects to the world file, presigning object storage locations
func (h *Handler) DownloadWorld(w http.ResponseWriter, r *http.Request) {
	worldID := chi.URLParam(r, "worldID")
	if worldID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	world, err := h.worlds.GetWorld(r.Context(), worldID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get world", "world_id", worldID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	target, err := h.downloads.PresignURL(r.Context(), world.WorldFileURL)
	if err != nil {
		if errors.Is(err, domain.ErrStorageNotAvailable) {
			h.writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		h.logger.Error("failed to presign download", "world_id", worldID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}
