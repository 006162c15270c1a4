package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/domain"
)

// LoginResult mirrors the provider's answer to a sign-in attempt
type LoginResult struct {
	Data  *domain.Session `json:"data,omitempty"`
	Error error           `json:"-"`
}

// AuthReflector keeps auth-only and unauth-only regions in step with the auth provider
type AuthReflector struct {
	auth   AuthProvider
	config *config.GalleryConfig
	logger *slog.Logger

	mu          sync.Mutex
	broadcaster Broadcaster
	unsubscribe func()
}

// NewAuthReflector creates a new auth reflector
func NewAuthReflector(auth AuthProvider, cfg *config.GalleryConfig, logger *slog.Logger) *AuthReflector {
	return &AuthReflector{
		auth:   auth,
		config: cfg,
		logger: logger,
	}
}

// SetBroadcaster attaches the live view hub
func (r *AuthReflector) SetBroadcaster(b Broadcaster) {
	r.mu.Lock()
	r.broadcaster = b
	r.mu.Unlock()
}

// Start subscribes to auth state changes
func (r *AuthReflector) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		return
	}
	r.unsubscribe = r.auth.OnAuthStateChange(r.OnAuthStateChange)
}

// Stop unsubscribes from auth state changes
func (r *AuthReflector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
}

// OnAuthStateChange refreshes every view bound to the event's session.
// The event payload is not trusted for the decision; each view re-queries its user.
func (r *AuthReflector) OnAuthStateChange(event domain.AuthEvent) {
	r.logger.Debug("auth state changed", "event", event.Type)
	if event.Session == nil {
		return
	}

	r.mu.Lock()
	b := r.broadcaster
	r.mu.Unlock()
	if b == nil {
		return
	}

	b.Dispatch(SessionTopic(event.Session.ID), func(ctx context.Context, v *View) {
		r.UpdateAuthUI(ctx, v.Token(), v.Display())
	})
}

// UpdateAuthUI shows auth-only regions when token belongs to a user and
// unauth-only regions otherwise. Provider errors count as no user.
func (r *AuthReflector) UpdateAuthUI(ctx context.Context, token string, display Display) bool {
	authenticated := false
	if token != "" {
		user, err := r.auth.GetUser(ctx, token)
		authenticated = err == nil && user != nil
	}
	display.SetAuthVisibility(authenticated)
	return authenticated
}

// Login forwards the credentials to the provider and never navigates
func (r *AuthReflector) Login(ctx context.Context, email, password string) LoginResult {
	session, err := r.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		r.logger.Info("login failed", "error", err)
		return LoginResult{Error: err}
	}
	return LoginResult{Data: session}
}

// Logout signs the session out and navigates to the landing page.
// On failure it logs, stays on the current page and returns the error.
func (r *AuthReflector) Logout(ctx context.Context, token string, display Display) error {
	if err := r.auth.SignOut(ctx, token); err != nil {
		r.logger.Error("error signing out", "error", err)
		return err
	}
	display.Navigate(r.config.LandingPath)
	return nil
}
