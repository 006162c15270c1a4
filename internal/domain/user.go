package domain

import "time"

// AuthEventType is the kind of auth-state change
type AuthEventType string

const (
	AuthEventSignedIn  AuthEventType = "SIGNED_IN"
	AuthEventSignedOut AuthEventType = "SIGNED_OUT"
)

// User represents an account that can sign in and like worlds
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is an authenticated session issued by the auth provider
type Session struct {
	ID          string    `json:"id"`
	AccessToken string    `json:"access_token"`
	User        *User     `json:"user"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AuthEvent is pushed to listeners when a session signs in or out
type AuthEvent struct {
	Type    AuthEventType `json:"event"`
	Session *Session      `json:"session,omitempty"`
}

// Credentials carries an email/password login attempt
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserRequest represents a request to register a user
type CreateUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}
