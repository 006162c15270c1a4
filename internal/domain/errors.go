package domain

import "errors"

// Domain errors
var (
	ErrWorldNotFound       = errors.New("world not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidWorld        = errors.New("invalid world")
	ErrInvalidSlide        = errors.New("invalid slide index")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrSessionNotFound     = errors.New("session not found")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
	ErrStorageNotAvailable = errors.New("object storage not configured")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorldNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}
