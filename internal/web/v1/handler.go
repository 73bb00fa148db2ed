package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pontoweb/auth-service/internal/core/domain"
	logicv1 "github.com/pontoweb/auth-service/internal/logic/v1"
	"github.com/pontoweb/auth-service/middleware"
	pkgzerolog "github.com/pontoweb/auth-service/pkg/logger/zerolog"
)

// Handler groups HTTP handlers for the auth API v1.
// Dependencies are injected via the constructor — no global state.
type Handler struct {
	auth   *logicv1.AuthService
	events chan<- logicv1.Event
}

// NewHandler creates a new Handler with the given AuthService. Sign-in and
// sign-out transitions are announced on events; delivery is non-blocking,
// so a full channel drops the notification rather than stalling a request.
func NewHandler(auth *logicv1.AuthService, events chan<- logicv1.Event) *Handler {
	return &Handler{auth: auth, events: events}
}

// emit announces an auth state transition without blocking the request.
func (h *Handler) emit(ev logicv1.Event) {
	if h.events == nil {
		return
	}
	select {
	case h.events <- ev:
	default:
	}
}

// RegisterRoutes registers all auth API v1 routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.Login)
	rg.POST("/auth/logout", h.Logout)
	rg.POST("/auth/register", h.Register)
	rg.GET("/auth/me", h.GetMe)
	rg.POST("/auth/password/change", h.ChangePassword)
	rg.POST("/auth/password/reset", h.ResetPassword)
}

// Login handles HTTP request for user sign-in.
func (h *Handler) Login(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	// Call business logic layer
	response, err := h.auth.SignIn(ctx, req)
	if err != nil {
		span.RecordError(err)
		logger.Warn().
			Err(err).
			Fields(pkgzerolog.Fields(map[string]any{
				"user_id":  req.ID,
				"password": req.Password,
			})).
			Msg("Login failed")

		switch {
		case errors.Is(err, logicv1.ErrInvalidCredentials):
			// Same body for a missing user and a wrong password.
			middleware.ObserveAuthAttempt("sign_in", "invalid_credentials")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		default:
			middleware.ObserveAuthAttempt("sign_in", "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	middleware.ObserveAuthAttempt("sign_in", "success")
	logger.Info().Str("user_id", response.User.ID).Msg("Login successful")
	h.emit(logicv1.Event{Type: logicv1.EventSignedIn})
	c.JSON(http.StatusOK, response)
}

// Logout handles HTTP request for sign-out. The remote revoke is
// best-effort and the local clear is guaranteed, so this endpoint never
// reports failure.
func (h *Handler) Logout(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	h.auth.SignOut(ctx)

	middleware.ObserveAuthAttempt("sign_out", "success")
	pkgzerolog.FromContext(ctx).Info().Msg("Logout completed")
	h.emit(logicv1.Event{Type: logicv1.EventSignedOut})
	c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}

// Register handles HTTP request for account provisioning. Only an
// authenticated admin may create accounts; the new record stores the
// creator's id.
func (h *Handler) Register(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	logger := pkgzerolog.FromContext(ctx)

	caller, ok := h.requireUser(c, span)
	if !ok {
		return
	}
	if caller.Role != domain.RoleAdmin {
		span.SetAttributes(attribute.Bool("auth.authorized", false))
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin role required"})
		return
	}

	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		logger.Error().Err(err).Msg("Invalid request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	user, err := h.auth.SignUp(ctx, req, caller.ID)
	if err != nil {
		span.RecordError(err)
		logger.Warn().
			Err(err).
			Str("user_id", req.ID).
			Msg("Registration failed")

		switch {
		case errors.Is(err, logicv1.ErrDuplicateIdentity):
			middleware.ObserveAuthAttempt("sign_up", "duplicate")
			c.JSON(http.StatusConflict, gin.H{"error": "Identity already exists"})
		case errors.Is(err, logicv1.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
		default:
			middleware.ObserveAuthAttempt("sign_up", "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	middleware.ObserveAuthAttempt("sign_up", "success")
	logger.Info().Str("user_id", user.ID).Str("created_by", caller.ID).Msg("Registration successful")
	c.JSON(http.StatusCreated, user)
}

// GetMe handles HTTP request to get current user from session token.
// GET /api/v1/auth/me
// Authorization: Bearer <token>
func (h *Handler) GetMe(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	user, ok := h.requireUser(c, span)
	if !ok {
		return
	}

	pkgzerolog.FromContext(ctx).Info().Str("user_id", user.ID).Msg("Token validated")
	c.JSON(http.StatusOK, user)
}

// ChangePassword is a deliberately unimplemented flow; it always fails.
func (h *Handler) ChangePassword(c *gin.Context) {
	user, ok := h.requireUser(c, trace.SpanFromContext(c.Request.Context()))
	if !ok {
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), user.ID, "", ""); err != nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Password change is not available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "changed"})
}

// ResetPassword is a deliberately unimplemented flow; it always fails.
func (h *Handler) ResetPassword(c *gin.Context) {
	user, ok := h.requireUser(c, trace.SpanFromContext(c.Request.Context()))
	if !ok {
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), user.ID); err != nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Password reset is not available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// requireUser resolves the bearer token to a user, writing the error
// response itself when the request is not authenticated.
func (h *Handler) requireUser(c *gin.Context, span trace.Span) (*domain.User, bool) {
	ctx := c.Request.Context()
	logger := pkgzerolog.FromContext(ctx)

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		span.SetAttributes(attribute.Bool("auth.present", false))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
		return nil, false
	}

	// Expect "Bearer <token>"
	const bearerPrefix = "Bearer "
	if len(authHeader) <= len(bearerPrefix) || authHeader[:len(bearerPrefix)] != bearerPrefix {
		span.SetAttributes(attribute.Bool("auth.valid_format", false))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
		return nil, false
	}
	tok := authHeader[len(bearerPrefix):]

	span.SetAttributes(attribute.Bool("auth.present", true))

	user, err := h.auth.GetUserByToken(ctx, tok)
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Msg("Token lookup failed")

		switch {
		case errors.Is(err, logicv1.ErrSessionNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		case errors.Is(err, logicv1.ErrSessionExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return nil, false
	}

	return user, true
}
