// Package v1 provides authentication business logic for API version 1.
//
// Error Handling:
// This package defines sentinel errors that represent common authentication failures.
// These errors should be wrapped with context using fmt.Errorf("%w") when returned
// from business logic methods.
//
// Example Usage:
//
//	if row == nil || !s.hasher.Verify(password, row.PasswordHash) {
//	    return nil, fmt.Errorf("authenticate: %w", ErrInvalidCredentials)
//	}
//
// Error Checking (in handlers):
//
//	switch {
//	case errors.Is(err, logicv1.ErrInvalidCredentials):
//	    c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
//	case errors.Is(err, logicv1.ErrDuplicateIdentity):
//	    c.JSON(http.StatusConflict, gin.H{"error": "Identity already exists"})
//	default:
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
//	}
package v1

import "errors"

// Sentinel errors for authentication operations.
// These errors should be wrapped with context using fmt.Errorf("%w") when returned.
var (
	// ErrInvalidCredentials indicates the provided credentials are incorrect.
	// A missing user and a wrong password both surface as this error, with
	// identical wrapping, so callers cannot tell which case occurred.
	// HTTP Status: 401 Unauthorized
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDuplicateIdentity indicates the registration id is already taken.
	// HTTP Status: 409 Conflict
	ErrDuplicateIdentity = errors.New("identity already exists")

	// ErrInvalidRole indicates the requested role is not a known value.
	// HTTP Status: 400 Bad Request
	ErrInvalidRole = errors.New("invalid role")

	// ErrSessionNotFound indicates the session token does not exist.
	// HTTP Status: 401 Unauthorized
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session token has expired.
	// HTTP Status: 401 Unauthorized
	ErrSessionExpired = errors.New("session expired")

	// ErrNotImplemented marks flows that are deliberately unimplemented
	// (password change and reset). They always fail.
	// HTTP Status: 501 Not Implemented
	ErrNotImplemented = errors.New("not implemented")
)
