// Package auth issues and verifies password sessions.
//
// Sessions are HS256 JWTs whose jti names a session record held by a
// SessionStore; revoking the record signs the token out even before it expires.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/domain"
)

const minPasswordLength = 8

// UserStore persists user accounts
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// SessionStore persists live sessions
type SessionStore interface {
	SaveSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// sessionClaims is the JWT payload of an access token
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Provider authenticates users and notifies listeners of sign-in and sign-out
type Provider struct {
	cfg      *config.AuthConfig
	users    UserStore
	sessions SessionStore
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	listeners map[uint64]func(domain.AuthEvent)
	nextID    uint64
}

// NewProvider creates a new auth provider
func NewProvider(cfg *config.AuthConfig, users UserStore, sessions SessionStore, logger *slog.Logger) *Provider {
	return &Provider{
		cfg:       cfg,
		users:     users,
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[uint64]func(domain.AuthEvent)),
	}
}

// OnAuthStateChange registers fn for every auth event and returns a func that removes it
func (p *Provider) OnAuthStateChange(fn func(domain.AuthEvent)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Provider) emit(event domain.AuthEvent) {
	p.mu.RLock()
	fns := make([]func(domain.AuthEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(event)
	}
}

// CreateUser registers a new account with a bcrypt-hashed password
func (p *Provider) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, oops.Code("USER_INVALID").With("email", req.Email).Wrap(domain.ErrInvalidRequest)
	}
	if len(req.Password) < minPasswordLength {
		return nil, oops.Code("USER_INVALID").
			With("min_length", minPasswordLength).
			Wrapf(domain.ErrInvalidRequest, "password too short")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), p.cfg.BcryptCost)
	if err != nil {
		return nil, oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = email[:strings.Index(email, "@")]
	}

	user := &domain.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
	}
	if err := p.users.CreateUser(ctx, user); err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").With("email", email).Wrap(err)
	}

	p.logger.Info("user created", "user_id", user.ID, "email", email)
	return user, nil
}

// SignInWithPassword verifies credentials and opens a new session
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	user, err := p.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(domain.ErrInvalidCredentials)
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").With("operation", "get user by email").Wrap(err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").With("user_id", user.ID).Wrap(domain.ErrInvalidCredentials)
	}

	now := p.now()
	session := &domain.Session{
		ID:        ulid.Make().String(),
		User:      &domain.User{ID: user.ID, Email: user.Email, DisplayName: user.DisplayName},
		ExpiresAt: now.Add(p.cfg.SessionTTL),
	}

	token, err := p.signToken(session, now)
	if err != nil {
		return nil, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	session.AccessToken = token

	if err := p.sessions.SaveSession(ctx, session); err != nil {
		return nil, oops.Code("SESSION_SAVE_FAILED").With("session_id", session.ID).Wrap(err)
	}

	p.logger.Info("user signed in", "user_id", user.ID, "session_id", session.ID)
	p.emit(domain.AuthEvent{Type: domain.AuthEventSignedIn, Session: session})
	return session, nil
}

// SignOut revokes the session behind token
func (p *Provider) SignOut(ctx context.Context, token string) error {
	session, err := p.GetSession(ctx, token)
	if err != nil {
		return err
	}

	if err := p.sessions.DeleteSession(ctx, session.ID); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("session_id", session.ID).Wrap(err)
	}

	p.logger.Info("user signed out", "user_id", session.User.ID, "session_id", session.ID)
	p.emit(domain.AuthEvent{Type: domain.AuthEventSignedOut, Session: session})
	return nil
}

// GetSession returns the live session behind token
func (p *Provider) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, oops.Code("SESSION_MISSING").Wrap(domain.ErrNotAuthenticated)
	}

	claims, err := p.parseToken(token)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").Wrapf(domain.ErrNotAuthenticated, "%v", err)
	}

	session, err := p.sessions.GetSession(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, oops.Code("SESSION_REVOKED").With("session_id", claims.ID).Wrap(domain.ErrNotAuthenticated)
		}
		return nil, oops.Code("SESSION_LOOKUP_FAILED").With("session_id", claims.ID).Wrap(err)
	}
	if session.AccessToken != token {
		return nil, oops.Code("SESSION_INVALID").With("session_id", claims.ID).Wrap(domain.ErrNotAuthenticated)
	}
	return session, nil
}

// GetUser returns the user signed in with token
func (p *Provider) GetUser(ctx context.Context, token string) (*domain.User, error) {
	session, err := p.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	return session.User, nil
}

func (p *Provider) signToken(session *domain.Session, now time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   session.User.ID,
			Issuer:    p.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Email: session.User.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (p *Provider) parseToken(token string) (*sessionClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(p.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if claims.ID == "" {
		return nil, errors.New("token has no session id")
	}
	return &claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
