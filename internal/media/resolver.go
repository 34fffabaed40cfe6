// internal/media/resolver.go
package media

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/logger"
	"github.com/Annany2002/nebula-dataapi/internal/record"
)

var customLog = logger.NewLogger()

// Resolver finds attachment URLs for records.
type Resolver interface {
	// FirstURL returns the URL of the oldest item in collection, or "" when there is none.
	FirstURL(ctx context.Context, table string, recordID int64, collection string) (string, error)
}

// GormResolver reads media items from the metadata database.
type GormResolver struct {
	db *gorm.DB
}

func NewGormResolver(db *gorm.DB) *GormResolver {
	return &GormResolver{db: db}
}

func (r *GormResolver) FirstURL(ctx context.Context, table string, recordID int64, collection string) (string, error) {
	var item domain.MediaItem
	err := r.db.WithContext(ctx).
		Where("table_name = ? AND record_id = ? AND collection = ?", table, recordID, collection).
		Order("created_at, id").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up media for %s/%d: %w", table, recordID, err)
	}
	return item.URL, nil
}

// Attach stores a media item. Upload storage itself is handled elsewhere.
func (r *GormResolver) Attach(ctx context.Context, table string, recordID int64, collection, url string) (*domain.MediaItem, error) {
	item := &domain.MediaItem{OwnerTable: table, RecordID: recordID, Collection: collection, URL: url}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to store media item: %w", err)
	}
	return item, nil
}

// Backfill replaces the value of every file and image field of rec with the first
// attachment URL, trying the field's own collection before the other one. The stored
// value is kept when neither collection has an item.
func Backfill(ctx context.Context, r Resolver, model *domain.Model, rec *record.Record) {
	if r == nil {
		return
	}
	id := rec.ID()
	if id == 0 {
		return
	}

	for _, f := range model.Fields {
		if !f.Type.IsMedia() {
			continue
		}
		primary, fallback := f.Type.MediaCollections()
		for _, collection := range []string{primary, fallback} {
			url, err := r.FirstURL(ctx, model.TableName, id, collection)
			if err != nil {
				customLog.Warnf("Media: %v", err)
				break
			}
			if url != "" {
				rec.Set(f.Name, record.String(url))
				break
			}
		}
	}
}
