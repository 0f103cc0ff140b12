package registry

import "errors"

var (
	// ErrInvalidURL is returned when the original URL doesn't parse as an absolute URL.
	ErrInvalidURL = errors.New("invalid original url")
	// ErrInvalidShortCode is returned when a custom code isn't 3-20 alphanumeric characters.
	ErrInvalidShortCode = errors.New("invalid short code")
	// ErrShortCodeTaken is returned when a custom code is already registered.
	ErrShortCodeTaken = errors.New("short code taken")
	// ErrNotFound is returned when no link is registered under a short code.
	ErrNotFound = errors.New("short code not found")
	// ErrCodeSpaceExhausted is returned when code generation keeps colliding
	// after the retry limit, even with widened candidate lengths.
	ErrCodeSpaceExhausted = errors.New("short code space exhausted")
)
