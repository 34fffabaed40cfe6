// internal/webhook/store.go
package webhook

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
)

// FailureThreshold is the consecutive failure count at which a webhook is deactivated.
const FailureThreshold = 10

// Store reads subscriptions and records delivery outcomes.
type Store interface {
	ActiveFor(ctx context.Context, modelID uint, event string) ([]domain.Webhook, error)
	RecordSuccess(ctx context.Context, id uint) error
	RecordFailure(ctx context.Context, id uint) error
}

// GormStore keeps webhook state in the metadata database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// ActiveFor returns the active webhooks of a model subscribed to event.
func (s *GormStore) ActiveFor(ctx context.Context, modelID uint, event string) ([]domain.Webhook, error) {
	var hooks []domain.Webhook
	err := s.db.WithContext(ctx).
		Where("model_id = ? AND is_active = ?", modelID, true).
		Order("id").
		Find(&hooks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load webhooks for model %d: %w", modelID, err)
	}

	subscribed := hooks[:0]
	for _, h := range hooks {
		if h.Subscribes(event) {
			subscribed = append(subscribed, h)
		}
	}
	return subscribed, nil
}

// RecordSuccess resets the failure counter and stamps the trigger time.
func (s *GormStore) RecordSuccess(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&domain.Webhook{}).Where("id = ?", id).
		Updates(map[string]any{
			"failure_count":     0,
			"last_triggered_at": time.Now().UTC(),
		}).Error
}

// RecordFailure increments the failure counter and deactivates the webhook at the
// threshold in the same statement.
func (s *GormStore) RecordFailure(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&domain.Webhook{}).Where("id = ?", id).
		Updates(map[string]any{
			"failure_count": gorm.Expr("failure_count + 1"),
			"is_active":     gorm.Expr("CASE WHEN failure_count + 1 >= ? THEN ? ELSE is_active END", FailureThreshold, false),
		}).Error
}
