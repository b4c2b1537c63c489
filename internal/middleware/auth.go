package middleware

import (
	"net/http"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkhttp "github.com/clerk/clerk-sdk-go/v2/http"
	"github.com/deppfellow/backboneapi/internal/codec"
	"github.com/deppfellow/backboneapi/internal/errs"
	"github.com/deppfellow/backboneapi/internal/server"
	"github.com/labstack/echo/v4"
)

// PermissionsKey holds the caller's organization permissions ([]string).
const PermissionsKey = "permissions"

type AuthMiddleware struct {
	server *server.Server
}

func NewAuthMiddleware(s *server.Server) *AuthMiddleware {
	return &AuthMiddleware{
		server: s,
	}
}

func (auth *AuthMiddleware) unauthorized(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()

	body, err := codec.Encode(errs.NewUnauthorizedError("Unauthorized", false))
	if err != nil {
		auth.server.Logger.Error().
			Err(err).
			Str("function", "RequireAuth").
			Msg("failed to encode unauthorized response")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write(body)

	auth.server.Logger.Warn().
		Str("function", "RequireAuth").
		Dur("duration", time.Since(start)).
		Msg("rejected invalid session token")
}

// setClaims copies the Clerk session claims into the Echo context and
// reports whether there were any.
func (auth *AuthMiddleware) setClaims(c echo.Context) bool {
	claims, ok := clerk.SessionClaimsFromContext(c.Request().Context())
	if !ok {
		return false
	}

	c.Set(UserIDKey, claims.Subject)
	c.Set(UserRoleKey, claims.ActiveOrganizationRole)
	c.Set(PermissionsKey, claims.Claims.ActiveOrganizationPermissions)

	auth.server.Logger.Debug().
		Str("function", "auth").
		Str("user_id", claims.Subject).
		Str("request_id", GetRequestID(c)).
		Msg("user authenticated")

	return true
}

// RequireAuth rejects requests without a valid Clerk session.
func (auth *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return echo.WrapMiddleware(
		clerkhttp.WithHeaderAuthorization(
			clerkhttp.AuthorizationFailureHandler(http.HandlerFunc(auth.unauthorized)),
		),
	)(func(c echo.Context) error {
		if !auth.setClaims(c) {
			auth.server.Logger.Warn().
				Str("function", "RequireAuth").
				Str("request_id", GetRequestID(c)).
				Msg("could not get session claims from context")

			return errs.NewUnauthorizedError("Unauthorized", false)
		}
		return next(c)
	})
}

// OptionalAuth identifies the caller when a session token is present and
// lets anonymous requests through. An invalid token is still rejected.
func (auth *AuthMiddleware) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return echo.WrapMiddleware(
		clerkhttp.WithHeaderAuthorization(
			clerkhttp.AuthorizationFailureHandler(http.HandlerFunc(auth.unauthorized)),
		),
	)(func(c echo.Context) error {
		auth.setClaims(c)
		return next(c)
	})
}
