package service

import (
	"context"

	"github.com/world-gallery/internal/domain"
)

// AuthProvider is the session authority the gallery asks about the current user
type AuthProvider interface {
	OnAuthStateChange(fn func(domain.AuthEvent)) func()
	GetUser(ctx context.Context, token string) (*domain.User, error)
	GetSession(ctx context.Context, token string) (*domain.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	SignOut(ctx context.Context, token string) error
}

// WorldStore is the relational store holding worlds, images and likes
type WorldStore interface {
	ListWorlds(ctx context.Context) ([]domain.World, error)
	InsertLike(ctx context.Context, like domain.Like) error
	DeleteLike(ctx context.Context, worldID, userID string) error
	ToggleLike(ctx context.Context, worldID, userID string) (*domain.ToggleResult, error)
	CountLikes(ctx context.Context, worldID string) (int64, error)
}

// LikeCache keeps like counts close to the views
type LikeCache interface {
	SetLikeCount(ctx context.Context, worldID string, count int64) error
	GetLikeCount(ctx context.Context, worldID string) (int64, error)
	TopLiked(ctx context.Context, n int) ([]domain.LikeCount, error)
}

// LikePublisher announces like mutations to other instances
type LikePublisher interface {
	PublishLikeEvent(ctx context.Context, event domain.LikeEvent) error
}

// Job is work run on one view's loop
type Job func(ctx context.Context, v *View)

// Broadcaster hands jobs to the views subscribed to a topic
type Broadcaster interface {
	Dispatch(topic string, job Job)
}

// TopicGallery reaches every live view of the gallery
const TopicGallery = "gallery"

// SessionTopic reaches every live view signed in with the session
func SessionTopic(sessionID string) string {
	return "session:" + sessionID
}
