package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness constraint was violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidCredentials indicates login was rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTransport indicates a network, DNS or timeout failure talking to the backend.
	ErrTransport = errors.New("transport failure")
	// ErrTokenInvalid indicates the server rejected a bearer token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired indicates the token expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrPermissionDenied indicates an authorization decision went against the caller.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
