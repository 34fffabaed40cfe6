// api/middleware/identity_middleware.go
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/nebula-dataapi/internal/auth"
	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/logger"
	"github.com/Annany2002/nebula-dataapi/internal/registry"
)

var customLog = logger.NewLogger()

// identityKey is the gin context key holding the resolved auth.Identity.
const identityKey = "identity"

// APIKeyHeader is accepted as an alternative to "Authorization: ApiKey ...".
const APIKeyHeader = "X-API-Key"

// KeyStore looks up API keys by plaintext.
type KeyStore interface {
	FindAPIKey(ctx context.Context, plaintext string) (*domain.APIKey, error)
	TouchAPIKey(ctx context.Context, id uint)
}

// IdentityFrom returns the caller resolved by IdentityMiddleware.
// Requests that never passed through it are anonymous.
func IdentityFrom(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if ident, ok := v.(auth.Identity); ok {
			return ident
		}
	}
	return auth.Identity{}
}

// IdentityMiddleware resolves the caller from a Bearer token or an API key.
// Requests without credentials continue anonymously; access rules decide what they may do.
// Credentials that are present but invalid abort with the auth error attached.
func IdentityMiddleware(keys KeyStore, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, credentials, err := credentialsFrom(c)
		if err != nil {
			customLog.Warnf("IdentityMiddleware: %v", err)
			_ = c.Error(err)
			c.Abort()
			return
		}

		var ident auth.Identity
		switch scheme {
		case "":
			// anonymous
		case "bearer":
			userID, err := auth.ValidateJWT(credentials, jwtSecret)
			if err != nil {
				customLog.Printf("IdentityMiddleware: Token validation failed: %v", err)
				_ = c.Error(err)
				c.Abort()
				return
			}
			ident.UserID = userID
		case "apikey":
			key, err := resolveAPIKey(c.Request.Context(), keys, credentials)
			if err != nil {
				customLog.Warnf("IdentityMiddleware: API key rejected: %v", err)
				_ = c.Error(err)
				c.Abort()
				return
			}
			keys.TouchAPIKey(c.Request.Context(), key.ID)
			ident = auth.Identity{UserID: key.UserID, APIKey: key}
		}

		c.Set(identityKey, ident)
		c.Next()
	}
}

// credentialsFrom returns the lowercased scheme and the credential. An empty scheme means none were sent.
func credentialsFrom(c *gin.Context) (string, string, error) {
	if key := strings.TrimSpace(c.GetHeader(APIKeyHeader)); key != "" {
		return "apikey", key, nil
	}

	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", "", nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", "", fmt.Errorf("%w: authorization header format must be 'Bearer {token}' or 'ApiKey {key}'", auth.ErrTokenMalformed)
	}

	scheme := strings.ToLower(parts[0])
	switch scheme {
	case "bearer", "apikey":
		return scheme, strings.TrimSpace(parts[1]), nil
	}
	return "", "", fmt.Errorf("%w: unsupported scheme '%s'", auth.ErrTokenMalformed, parts[0])
}

func resolveAPIKey(ctx context.Context, keys KeyStore, plaintext string) (*domain.APIKey, error) {
	if !auth.LooksLikeAPIKey(plaintext) {
		return nil, fmt.Errorf("%w: invalid key prefix", auth.ErrAPIKeyInvalid)
	}
	key, err := keys.FindAPIKey(ctx, plaintext)
	if errors.Is(err, registry.ErrAPIKeyNotFound) {
		return nil, auth.ErrAPIKeyInvalid
	}
	if err != nil {
		return nil, err
	}
	if !key.IsActive || key.Expired(time.Now()) {
		return nil, auth.ErrAPIKeyExpired
	}
	return key, nil
}
