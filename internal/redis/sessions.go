package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/world-gallery/internal/domain"
)

// SessionStore keeps signed-in sessions in Redis hashes that expire with the session
type SessionStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewSessionStore creates a session store on an existing client
func NewSessionStore(client *redis.Client, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		client: client,
		logger: logger,
	}
}

// sessionKey returns the Redis key for a session hash
func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// SaveSession stores a session until its expiry
func (s *SessionStore) SaveSession(ctx context.Context, session *domain.Session) error {
	if session.User == nil {
		return fmt.Errorf("saving session: %w", domain.ErrInvalidRequest)
	}
	key := sessionKey(session.ID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"access_token", session.AccessToken,
		"user_id", session.User.ID,
		"email", session.User.Email,
		"display_name", session.User.DisplayName,
		"expires_at", session.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.ExpireAt(ctx, key, session.ExpiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession loads a session; expired or unknown sessions return ErrSessionNotFound
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	result, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	if len(result) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, result["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("parsing session expiry: %w", err)
	}

	return &domain.Session{
		ID:          sessionID,
		AccessToken: result["access_token"],
		ExpiresAt:   expiresAt,
		User: &domain.User{
			ID:          result["user_id"],
			Email:       result["email"],
			DisplayName: result["display_name"],
		},
	}, nil
}

// DeleteSession removes a session; deleting an unknown session returns ErrSessionNotFound
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	n, err := s.client.Del(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}
