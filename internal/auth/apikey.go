// internal/auth/apikey.go
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
)

// APIKeyPrefix marks plaintext keys issued by this service.
const APIKeyPrefix = "neb_"

// Identity is the caller resolved from request credentials.
// The zero value is the anonymous caller.
type Identity struct {
	UserID string
	APIKey *domain.APIKey
}

// Anonymous reports whether the caller presented no credentials.
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}

// KeyID returns the id of the API key in use, or 0 when the caller used a token or nothing.
func (i Identity) KeyID() uint {
	if i.APIKey == nil {
		return 0
	}
	return i.APIKey.ID
}

// Permits checks the API key restrictions for an action on a table.
// Callers without an API key are never restricted here; access rules still apply.
func (i Identity) Permits(action domain.Action, table string) bool {
	if i.APIKey == nil {
		return true
	}
	return i.APIKey.Can(action) && i.APIKey.AllowsTable(table)
}

// GenerateAPIKey returns a new plaintext key and the hash to persist for it.
func GenerateAPIKey() (plaintext, hash string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		customLog.Warnf("Error generating API key: %v", err)
		return "", "", fmt.Errorf("failed to generate api key")
	}
	plaintext = APIKeyPrefix + hex.EncodeToString(buf)
	return plaintext, HashAPIKey(plaintext), nil
}

// HashAPIKey returns the hex SHA-256 of a plaintext key. Keys are looked up by this value.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// LooksLikeAPIKey reports whether s carries the service key prefix.
func LooksLikeAPIKey(s string) bool {
	return strings.HasPrefix(s, APIKeyPrefix) && len(s) > len(APIKeyPrefix)
}
