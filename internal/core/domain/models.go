package domain

import "time"

// Role determines which screens and operations a user may access downstream.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// User is the authenticated principal returned to callers. The password
// hash never leaves the repository layer.
type User struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginRequest is the sign-in payload. The id is the numeric-string
// registration number used as the username component.
type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest is the account-provisioning payload.
type RegisterRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Role     Role   `json:"role" binding:"required"`
}

// AuthResponse is returned on successful login or registration.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
