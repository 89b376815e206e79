package errors

import "errors"

// Sentinel errors for handlers to map to HTTP status.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid or expired token")
)
