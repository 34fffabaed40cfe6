package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
)

const testSecret = "test-secret"

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("user-7", testSecret, time.Hour)
	require.NoError(t, err)

	userID, err := ValidateJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-7", userID)
}

func TestValidateJWTErrors(t *testing.T) {
	expired, err := GenerateJWT("user-7", testSecret, -time.Hour)
	require.NoError(t, err)
	valid, err := GenerateJWT("user-7", testSecret, time.Hour)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		token   string
		secret  string
		wantErr error
	}{
		{"malformed", "not-a-token", testSecret, ErrTokenMalformed},
		{"expired", expired, testSecret, ErrTokenExpired},
		{"wrong secret", valid, "other-secret", ErrTokenInvalid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateJWT(tc.token, tc.secret)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("hunter22", hash))
	assert.False(t, CheckPasswordHash("hunter23", hash))
}

func TestGenerateAPIKey(t *testing.T) {
	plain, hash, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, LooksLikeAPIKey(plain))
	assert.Equal(t, HashAPIKey(plain), hash)
	assert.Len(t, hash, 64)
	assert.NotContains(t, hash, plain)

	other, _, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, plain, other)
}

func TestIdentityPermits(t *testing.T) {
	anon := Identity{}
	assert.True(t, anon.Anonymous())
	assert.True(t, anon.Permits(domain.ActionCreate, "posts"))

	readOnly := Identity{UserID: "u1", APIKey: &domain.APIKey{
		ID:            3,
		Permissions:   []string{"read"},
		AllowedTables: []string{"posts"},
	}}
	assert.False(t, readOnly.Anonymous())
	assert.Equal(t, uint(3), readOnly.KeyID())
	assert.True(t, readOnly.Permits(domain.ActionList, "posts"))
	assert.True(t, readOnly.Permits(domain.ActionView, "posts"))
	assert.False(t, readOnly.Permits(domain.ActionCreate, "posts"))
	assert.False(t, readOnly.Permits(domain.ActionList, "comments"))

	wildcard := Identity{UserID: "u1", APIKey: &domain.APIKey{Permissions: []string{"*"}}}
	assert.True(t, wildcard.Permits(domain.ActionDelete, "anything"))
}
