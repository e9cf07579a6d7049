package auth

import "errors"

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, unexpected
	// algorithms and missing claims.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired is returned for tokens outside their validity window.
	ErrTokenExpired = errors.New("auth: token expired")
	ErrInvalidInput = errors.New("auth: invalid input")
)
