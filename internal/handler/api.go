package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/world-gallery/internal/domain"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

// ListWorlds returns every world, newest first
func (h *Handler) ListWorlds(w http.ResponseWriter, r *http.Request) {
	worlds, err := h.gallery.ListWorlds(r.Context())
	if err != nil {
		h.logger.Error("failed to list worlds", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, worlds)
}

// TopLiked returns the most liked worlds
func (h *Handler) TopLiked(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		limit = min(parsed, maxTopLimit)
	}

	top, err := h.gallery.TopLiked(r.Context(), limit)
	if err != nil {
		if errors.Is(err, domain.ErrStorageNotAvailable) {
			h.writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		h.logger.Error("failed to get top liked worlds", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, top)
}

type likeMutation func(ctx context.Context, userID, worldID string) (*domain.ToggleResult, error)

// mutateLike runs a like mutation for the signed-in user
func (h *Handler) mutateLike(w http.ResponseWriter, r *http.Request, op string, mutate likeMutation) {
	worldID := chi.URLParam(r, "worldID")
	if worldID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	user := h.gallery.CurrentUser(r.Context(), h.token(r))
	if user == nil {
		h.writeError(w, http.StatusUnauthorized, domain.ErrNotAuthenticated)
		return
	}

	result, err := mutate(r.Context(), user.ID, worldID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, domain.ErrWorldNotFound)
			return
		}
		h.logger.Error("failed to "+op+" world", "world_id", worldID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, result)
}

// ToggleLike flips the signed-in user's like on a world
func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	h.mutateLike(w, r, "toggle like on", h.gallery.ToggleLike)
}

// Like likes a world; repeating it changes nothing
func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	h.mutateLike(w, r, "like", h.gallery.Like)
}

// Unlike removes the signed-in user's like from a world
func (h *Handler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.mutateLike(w, r, "unlike", h.gallery.Unlike)
}

// GetLikeCount returns the number of likes on a world
func (h *Handler) GetLikeCount(w http.ResponseWriter, r *http.Request) {
	worldID := chi.URLParam(r, "worldID")
	if worldID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	count, err := h.gallery.LikeCount(r.Context(), worldID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, domain.ErrWorldNotFound)
			return
		}
		h.logger.Error("failed to count likes", "world_id", worldID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, domain.LikeCount{WorldID: worldID, Count: count})
}
