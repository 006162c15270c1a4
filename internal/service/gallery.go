package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/domain"
	"github.com/world-gallery/internal/metrics"
	"github.com/world-gallery/internal/view"
)

// LoginRequiredMessage is shown when an anonymous user tries to like a world
const LoginRequiredMessage = "Please login to like worlds"

// Gallery owns the world listing and the like relation.
// Cache, publisher and broadcaster are optional.
type Gallery struct {
	store    WorldStore
	auth     AuthProvider
	renderer *view.Renderer
	config   *config.GalleryConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	origin   string

	mu          sync.RWMutex
	cache       LikeCache
	publisher   LikePublisher
	broadcaster Broadcaster
}

// NewGallery creates a new gallery service
func NewGallery(
	store WorldStore,
	auth AuthProvider,
	renderer *view.Renderer,
	cfg *config.GalleryConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Gallery {
	return &Gallery{
		store:    store,
		auth:     auth,
		renderer: renderer,
		config:   cfg,
		metrics:  m,
		logger:   logger,
		origin:   uuid.NewString(),
	}
}

// SetCache attaches the like-count cache
func (g *Gallery) SetCache(cache LikeCache) {
	g.mu.Lock()
	g.cache = cache
	g.mu.Unlock()
}

// SetPublisher attaches the like event publisher
func (g *Gallery) SetPublisher(publisher LikePublisher) {
	g.mu.Lock()
	g.publisher = publisher
	g.mu.Unlock()
}

// SetBroadcaster attaches the live view hub
func (g *Gallery) SetBroadcaster(b Broadcaster) {
	g.mu.Lock()
	g.broadcaster = b
	g.mu.Unlock()
}

// Origin identifies this instance on published like events
func (g *Gallery) Origin() string {
	return g.origin
}

// NewView creates a view bound to display, acting for the holder of token
func (g *Gallery) NewView(display Display, token string) *View {
	return &View{
		gallery: g,
		display: display,
		token:   token,
		slides:  make(map[string]int),
		logger:  g.logger,
	}
}

// ListWorlds returns every world, newest first
func (g *Gallery) ListWorlds(ctx context.Context) ([]domain.World, error) {
	start := time.Now()
	worlds, err := g.store.ListWorlds(ctx)
	g.metrics.WorldLoad(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("listing worlds: %w", err)
	}
	return worlds, nil
}

// BuildCards turns worlds into cards with this gallery's options
func (g *Gallery) BuildCards(worlds []domain.World) []view.Card {
	return view.BuildCards(worlds, view.Options{PlaceholderImage: g.config.PlaceholderImage})
}

// CurrentUser returns the user behind token, or nil when there is none.
// Provider failures count as no user.
func (g *Gallery) CurrentUser(ctx context.Context, token string) *domain.User {
	if token == "" {
		return nil
	}
	user, err := g.auth.GetUser(ctx, token)
	if err != nil {
		if !errors.Is(err, domain.ErrNotAuthenticated) {
			g.logger.Warn("failed to get current user", "error", err)
		}
		return nil
	}
	return user
}

// Session returns the live session behind token
func (g *Gallery) Session(ctx context.Context, token string) (*domain.Session, error) {
	return g.auth.GetSession(ctx, token)
}

// ToggleLike flips the like of userID on worldID
func (g *Gallery) ToggleLike(ctx context.Context, userID, worldID string) (*domain.ToggleResult, error) {
	result, err := g.store.ToggleLike(ctx, worldID, userID)
	g.metrics.LikeMutation("toggle", err)
	if err != nil {
		return nil, fmt.Errorf("toggling like: %w", err)
	}
	g.afterMutation(ctx, userID, result)
	return result, nil
}

// Like records a like; liking twice is a no-op
func (g *Gallery) Like(ctx context.Context, userID, worldID string) (*domain.ToggleResult, error) {
	err := g.store.InsertLike(ctx, domain.Like{WorldID: worldID, UserID: userID})
	g.metrics.LikeMutation("like", err)
	if err != nil {
		return nil, fmt.Errorf("liking world: %w", err)
	}
	return g.settle(ctx, userID, worldID, true)
}

// Unlike removes a like; unliking twice is a no-op
func (g *Gallery) Unlike(ctx context.Context, userID, worldID string) (*domain.ToggleResult, error) {
	err := g.store.DeleteLike(ctx, worldID, userID)
	g.metrics.LikeMutation("unlike", err)
	if err != nil {
		return nil, fmt.Errorf("unliking world: %w", err)
	}
	return g.settle(ctx, userID, worldID, false)
}

func (g *Gallery) settle(ctx context.Context, userID, worldID string, liked bool) (*domain.ToggleResult, error) {
	count, err := g.store.CountLikes(ctx, worldID)
	if err != nil {
		return nil, fmt.Errorf("counting likes: %w", err)
	}
	result := &domain.ToggleResult{WorldID: worldID, Liked: liked, LikeCount: count}
	g.afterMutation(ctx, userID, result)
	return result, nil
}

// LikeCount returns the like count of a world, from the cache when it has one
func (g *Gallery) LikeCount(ctx context.Context, worldID string) (int64, error) {
	cache := g.likeCache()
	if cache != nil {
		count, err := cache.GetLikeCount(ctx, worldID)
		if err == nil {
			return count, nil
		}
		if !errors.Is(err, domain.ErrWorldNotFound) {
			g.logger.Warn("failed to read cached like count", "world_id", worldID, "error", err)
		}
	}

	count, err := g.store.CountLikes(ctx, worldID)
	if err != nil {
		return 0, fmt.Errorf("counting likes: %w", err)
	}
	if cache != nil {
		if err := cache.SetLikeCount(ctx, worldID, count); err != nil {
			g.logger.Warn("failed to cache like count", "world_id", worldID, "error", err)
		}
	}
	return count, nil
}

// TopLiked returns the most liked worlds according to the cache
func (g *Gallery) TopLiked(ctx context.Context, n int) ([]domain.LikeCount, error) {
	cache := g.likeCache()
	if cache == nil {
		return nil, domain.ErrStorageNotAvailable
	}
	top, err := cache.TopLiked(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("getting top liked worlds: %w", err)
	}
	return top, nil
}

// ApplyLikeEvents brings the cache up to date with events from other instances
// and refreshes local views once for the whole batch.
func (g *Gallery) ApplyLikeEvents(ctx context.Context, events []domain.LikeEvent) {
	remote := false
	cache := g.likeCache()
	for _, event := range events {
		if event.Origin == g.origin {
			continue
		}
		remote = true
		if cache == nil {
			continue
		}
		if err := cache.SetLikeCount(ctx, event.WorldID, event.LikeCount); err != nil {
			g.logger.Warn("failed to cache like count", "world_id", event.WorldID, "error", err)
		}
	}
	if remote {
		g.RefreshViews()
	}
}

// RefreshViews reloads every live view
func (g *Gallery) RefreshViews() {
	g.mu.RLock()
	b := g.broadcaster
	g.mu.RUnlock()
	if b == nil {
		return
	}
	b.Dispatch(TopicGallery, func(ctx context.Context, v *View) {
		_ = v.LoadWorlds(ctx)
	})
}

func (g *Gallery) afterMutation(ctx context.Context, userID string, result *domain.ToggleResult) {
	g.mu.RLock()
	cache, publisher := g.cache, g.publisher
	g.mu.RUnlock()

	if cache != nil {
		if err := cache.SetLikeCount(ctx, result.WorldID, result.LikeCount); err != nil {
			g.logger.Warn("failed to cache like count", "world_id", result.WorldID, "error", err)
		}
	}

	if publisher != nil {
		event := domain.LikeEvent{
			WorldID:   result.WorldID,
			UserID:    userID,
			Liked:     result.Liked,
			LikeCount: result.LikeCount,
			Timestamp: time.Now(),
			Origin:    g.origin,
		}
		if err := publisher.PublishLikeEvent(ctx, event); err != nil {
			g.logger.Warn("failed to publish like event", "world_id", result.WorldID, "error", err)
		}
	}

	g.RefreshViews()
}

func (g *Gallery) likeCache() LikeCache {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cache
}
