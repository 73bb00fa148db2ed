package v1

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pontoweb/auth-service/internal/core/domain"
	"github.com/pontoweb/auth-service/internal/localsession"
	"github.com/pontoweb/auth-service/internal/password"
	"github.com/pontoweb/auth-service/internal/token"
	"github.com/pontoweb/auth-service/middleware"
)

// AuthService implements the sign-in/sign-out contract: credential lookup,
// password verification, backend session issuance, and the local session
// cache. It depends on repository interfaces (injected via constructor) and
// MUST NOT access the database or SQL directly.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	hasher   *password.Hasher
	tokens   *token.Manager
	local    *localsession.Store
}

// NewAuthService creates a new AuthService with the given dependencies.
func NewAuthService(
	users domain.UserRepository,
	sessions domain.SessionRepository,
	hasher *password.Hasher,
	tokens *token.Manager,
	local *localsession.Store,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		local:    local,
	}
}

// SignIn authenticates the given id/password pair. A missing user, a wrong
// password, and a failed credential lookup all return an identically wrapped
// ErrInvalidCredentials so the caller cannot distinguish them.
func (s *AuthService) SignIn(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.sign_in", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	row, err := s.users.GetByID(ctx, req.ID)
	if err != nil {
		span.RecordError(err)
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate: %w", ErrInvalidCredentials)
	}
	if row == nil || !s.hasher.Verify(req.Password, row.PasswordHash) {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate: %w", ErrInvalidCredentials)
	}

	accessToken, err := s.tokens.Generate(row.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	// Persist backend session (best-effort, don't fail login)
	expiresAt := time.Now().Add(s.tokens.TTL())
	if sessErr := s.sessions.Create(ctx, row.ID, accessToken, expiresAt); sessErr != nil {
		span.RecordError(fmt.Errorf("create session: %w", sessErr))
		log.Warn().Err(sessErr).Msg("Failed to persist backend session")
	}

	// Update last_login timestamp (best-effort, don't fail login)
	if updateErr := s.users.UpdateLastLogin(ctx, row.ID); updateErr != nil {
		span.RecordError(fmt.Errorf("update last_login: %w", updateErr))
	}

	user := domain.User{
		ID:        row.ID,
		Role:      row.Role,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
	}

	// Cache the session locally; Save swallows persistence failures so a
	// broken local store never blocks a successful login.
	s.local.Save(user, accessToken)

	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.Bool("auth.success", true),
	)
	span.AddEvent("user.authenticated")

	return &domain.AuthResponse{Token: accessToken, User: user}, nil
}

// SignOut revokes the backend session and clears the local cache. The
// remote revoke is best-effort: its failure is logged and swallowed, and
// the local clear happens unconditionally.
func (s *AuthService) SignOut(ctx context.Context) {
	ctx, span := middleware.StartSpan(ctx, "auth.sign_out", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if tok := s.local.Token(); tok != "" {
		if err := s.sessions.DeleteByToken(ctx, tok); err != nil {
			span.RecordError(fmt.Errorf("revoke session: %w", err))
			log.Warn().Err(err).Msg("Remote session revoke failed, clearing local state anyway")
		}
	}

	s.local.Clear()
	span.AddEvent("user.signed_out")
}

// CurrentSession resolves the active session. It prefers a fresh
// backend-confirmed session; when backend confirmation fails it falls back
// to the local cache, and when the backend definitively reports the session
// gone it purges the cache. The result degrades to nil, never to an error.
func (s *AuthService) CurrentSession(ctx context.Context) *domain.User {
	ctx, span := middleware.StartSpan(ctx, "auth.current_session", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	tok := s.local.Token()
	if tok == "" {
		return s.local.Load()
	}

	row, err := s.sessions.GetUserByToken(ctx, tok)
	if err != nil {
		// Backend unreachable: the local cache remains the source of truth.
		span.RecordError(err)
		return s.local.Load()
	}
	if row == nil || time.Now().After(row.ExpiresAt) {
		// Backend revoked or expired the session.
		span.SetAttributes(attribute.Bool("session.valid", false))
		s.local.Clear()
		return nil
	}

	span.SetAttributes(attribute.Bool("session.valid", true))
	return &domain.User{
		ID:        row.UserID,
		Role:      row.Role,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
	}
}

// SignUp provisions a new account. The existence pre-check runs before any
// hash is computed; the insert itself is atomic, so a concurrent signup
// with the same id still loses cleanly.
func (s *AuthService) SignUp(ctx context.Context, req domain.RegisterRequest, createdBy string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.sign_up", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if !req.Role.Valid() {
		return nil, fmt.Errorf("register user %q: %w", req.ID, ErrInvalidRole)
	}

	exists, err := s.users.ExistsByID(ctx, req.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register user %q: %w", req.ID, ErrDuplicateIdentity)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	inserted, err := s.users.CreateIfAbsent(ctx, domain.UserRow{
		ID:           req.ID,
		PasswordHash: passwordHash,
		Role:         req.Role,
		CreatedBy:    createdBy,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if !inserted {
		// Lost the race to a concurrent signup with the same id.
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register user %q: %w", req.ID, ErrDuplicateIdentity)
	}

	row, err := s.users.GetByID(ctx, req.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("read back user %q: %w", req.ID, err)
	}
	if row == nil {
		return nil, fmt.Errorf("read back user %q: not found", req.ID)
	}

	span.SetAttributes(
		attribute.String("user.id", row.ID),
		attribute.Bool("registration.success", true),
	)
	span.AddEvent("user.registered")

	return &domain.User{
		ID:        row.ID,
		Role:      row.Role,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
	}, nil
}

// GetUserByToken retrieves user info from a session token (for /auth/me).
// The signature is verified first, so a forged token never reaches the
// session store.
func (s *AuthService) GetUserByToken(ctx context.Context, tok string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.get_user_by_token", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	tokenUserID, err := s.tokens.Parse(tok)
	if err != nil {
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, fmt.Errorf("verify token: %w", ErrSessionNotFound)
	}

	row, err := s.sessions.GetUserByToken(ctx, tok)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query session: %w", err)
	}
	if row == nil {
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, fmt.Errorf("lookup session: %w", ErrSessionNotFound)
	}

	if time.Now().After(row.ExpiresAt) {
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, fmt.Errorf("session expired at %v: %w", row.ExpiresAt, ErrSessionExpired)
	}
	if row.UserID != tokenUserID {
		// A session row keyed by a token issued to someone else.
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, fmt.Errorf("lookup session: %w", ErrSessionNotFound)
	}

	span.SetAttributes(
		attribute.String("user.id", row.UserID),
		attribute.Bool("session.valid", true),
	)

	return &domain.User{
		ID:        row.UserID,
		Role:      row.Role,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
	}, nil
}

// ChangePassword is an unimplemented stub; it always fails.
func (s *AuthService) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	return fmt.Errorf("change password: %w", ErrNotImplemented)
}

// ResetPassword is an unimplemented stub; it always fails.
func (s *AuthService) ResetPassword(ctx context.Context, id string) error {
	return fmt.Errorf("reset password: %w", ErrNotImplemented)
}
