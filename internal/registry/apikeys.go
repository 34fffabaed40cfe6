// internal/registry/apikeys.go
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Annany2002/nebula-dataapi/internal/auth"
	"github.com/Annany2002/nebula-dataapi/internal/domain"
)

// ErrAPIKeyNotFound is returned when no key matches the presented credential.
var ErrAPIKeyNotFound = errors.New("api key not found")

// CreateAPIKey stores a new key and returns its plaintext. The plaintext is not kept.
func (r *Registry) CreateAPIKey(ctx context.Context, name, userID string, permissions, tables []string, expiresAt *time.Time) (string, *domain.APIKey, error) {
	plaintext, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return "", nil, err
	}

	key := &domain.APIKey{
		Name:          name,
		KeyHash:       hash,
		UserID:        userID,
		Permissions:   permissions,
		AllowedTables: tables,
		IsActive:      true,
		ExpiresAt:     expiresAt,
	}
	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		customLog.Warnf("Registry: Failed to store API key for user %s: %v", userID, err)
		return "", nil, fmt.Errorf("failed to store api key: %w", err)
	}
	return plaintext, key, nil
}

// FindAPIKey looks a key up by its plaintext.
func (r *Registry) FindAPIKey(ctx context.Context, plaintext string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := r.db.WithContext(ctx).Where("key_hash = ?", auth.HashAPIKey(plaintext)).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		customLog.Warnf("Registry: Failed API key lookup: %v", err)
		return nil, fmt.Errorf("database error finding api key: %w", err)
	}
	return &key, nil
}

// TouchAPIKey records a use of the key. Failures are logged only.
func (r *Registry) TouchAPIKey(ctx context.Context, id uint) {
	err := r.db.WithContext(ctx).Model(&domain.APIKey{}).Where("id = ?", id).Update("last_used_at", time.Now().UTC()).Error
	if err != nil {
		customLog.Warnf("Registry: Failed to touch API key %d: %v", id, err)
	}
}
