package domain

import (
	"context"
	"time"
)

// UserRow represents a user record returned from the database.
// It includes the password hash so the Logic layer can verify credentials.
type UserRow struct {
	ID           string
	PasswordHash string
	Role         Role
	CreatedBy    string
	CreatedAt    time.Time
}

// UserRepository defines the data-access contract for user operations.
// Implementations live in internal/core/repository (Core layer).
// The Logic layer depends on this interface only — never on SQL or pgx directly.
type UserRepository interface {
	// GetByID returns the user matching the given id exactly.
	// Returns (nil, nil) when no user is found.
	GetByID(ctx context.Context, id string) (*UserRow, error)

	// ExistsByID returns true when a user with the given id already exists.
	ExistsByID(ctx context.Context, id string) (bool, error)

	// CreateIfAbsent inserts a new user unless the id is already taken.
	// The insert is atomic against concurrent signups for the same id;
	// it returns false with a nil error when the id exists.
	CreateIfAbsent(ctx context.Context, row UserRow) (bool, error)

	// UpdateLastLogin sets the last_login timestamp to now for the given user.
	UpdateLastLogin(ctx context.Context, id string) error
}
