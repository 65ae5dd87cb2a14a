package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/hrm-api/internal/handler"
	"github.com/jwalitptl/hrm-api/pkg/auth"
)

// Context keys set by Authenticate.
const (
	ContextUserID = "userID"
	ContextRole   = "userRole"
	ContextEmail  = "userEmail"
)

type AuthMiddleware struct {
	verifier auth.Verifier
	// Validated-claim cache keyed by raw token. Websocket handshakes and
	// badge polling hit this path often enough that skipping repeat
	// signature checks is worthwhile; the short TTL bounds staleness.
	cache *gocache.Cache
}

func NewAuthMiddleware(verifier auth.Verifier, cacheTTL time.Duration) *AuthMiddleware {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &AuthMiddleware{
		verifier: verifier,
		cache:    gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// Verify resolves a raw bearer token to claims, consulting the cache first.
func (m *AuthMiddleware) Verify(token string) (*auth.Claims, error) {
	if cached, ok := m.cache.Get(token); ok {
		return cached.(*auth.Claims), nil
	}
	claims, err := m.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	m.cache.SetDefault(token, claims)
	return claims, nil
}

// Authenticate verifies the bearer token and sets the caller identity in the
// request context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		claims, err := m.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

// BearerToken extracts the credential from the Authorization header, falling
// back to the token query parameter for websocket handshakes from browsers
// that cannot set headers on upgrade requests.
func BearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1], true
		}
		return "", false
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}
