// Package engine serves record operations for operator-declared models.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Annany2002/nebula-dataapi/internal/access"
	"github.com/Annany2002/nebula-dataapi/internal/auth"
	"github.com/Annany2002/nebula-dataapi/internal/core"
	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/logger"
	"github.com/Annany2002/nebula-dataapi/internal/media"
	"github.com/Annany2002/nebula-dataapi/internal/query"
	"github.com/Annany2002/nebula-dataapi/internal/record"
	"github.com/Annany2002/nebula-dataapi/internal/registry"
	"github.com/Annany2002/nebula-dataapi/internal/storage"
)

var customLog = logger.NewLogger()

// MaxBatchSize bounds a bulk create.
const MaxBatchSize = 1000

// Dispatcher delivers mutation events to webhooks without blocking.
type Dispatcher interface {
	Dispatch(ctx context.Context, model *domain.Model, event string, data map[string]any)
}

// Broadcaster publishes mutation events to subscribers.
type Broadcaster interface {
	Broadcast(model *domain.Model, event string, data map[string]any)
}

// Invalidator drops cached reads of a table.
type Invalidator interface {
	InvalidateTable(table string) int
}

// Service runs the record operations. It is safe for concurrent use.
type Service struct {
	registry  *registry.Registry
	db        *sql.DB
	tx        *storage.TxRunner
	validator *core.Validator
	media     media.Resolver
	cache     Invalidator
	webhooks  Dispatcher
	events    Broadcaster
	now       func() time.Time
}

type Option func(*Service)

func WithTxRunner(r *storage.TxRunner) Option {
	return func(s *Service) { s.tx = r }
}

func WithMedia(r media.Resolver) Option {
	return func(s *Service) { s.media = r }
}

func WithCache(c Invalidator) Option {
	return func(s *Service) { s.cache = c }
}

func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.webhooks = d }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.events = b }
}

// WithClock overrides the time source for system timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a service reading models from reg and records from db.
func New(reg *registry.Registry, db *sql.DB, opts ...Option) *Service {
	s := &Service{
		registry:  reg,
		db:        db,
		tx:        storage.NewTxRunner(db),
		validator: core.NewValidator(storage.UniquenessChecker{DB: db}),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// resolve finds the model for table and applies the API key restrictions for action.
func (s *Service) resolve(ident auth.Identity, table string, action domain.Action) (*domain.Model, *registry.Catalog, error) {
	catalog := s.registry.Catalog()
	model, ok := catalog.Lookup(table)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrModelNotFound, table)
	}
	if !ident.Permits(action, model.TableName) {
		customLog.Printf("Engine: API key %d lacks %s on %s", ident.KeyID(), action.Permission(), model.TableName)
		return nil, nil, fmt.Errorf("%w: api key does not permit %s on %s", ErrAccessDenied, action.Permission(), model.TableName)
	}
	return model, catalog, nil
}

func allowed(rule string, ident auth.Identity, rec *record.Record) bool {
	return access.Evaluate(rule, access.Env{ActorID: ident.UserID, Record: rec})
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(domain.TimestampLayout)
}

// buildRow turns request input into the values to write. Only declared fields are
// kept. Creates also fill defaults and generated uuids.
func (s *Service) buildRow(model *domain.Model, input map[string]any, isUpdate bool) *record.Record {
	rec := record.New()
	for i := range model.Fields {
		f := &model.Fields[i]
		raw, present := input[f.Name]
		switch {
		case present:
			rec.Set(f.Name, core.Cast(raw, f))
		case isUpdate:
			continue
		case f.DefaultValue != nil:
			rec.Set(f.Name, core.Cast(*f.DefaultValue, f))
		}
		if !isUpdate && f.Type.Normalize() == domain.TypeUUID {
			if v, ok := rec.Get(f.Name); !ok || record.IsNull(v) || v.String() == "" {
				rec.Set(f.Name, record.String(uuid.NewString()))
			}
		}
	}

	if model.HasTimestamps {
		now := record.String(s.timestamp())
		if !isUpdate {
			rec.Set(domain.ColumnCreatedAt, now)
		}
		rec.Set(domain.ColumnUpdatedAt, now)
	}
	return rec
}

// shape prepares a record for output: media back-fill, then hidden fields removed.
func (s *Service) shape(ctx context.Context, model *domain.Model, rec *record.Record) *record.Record {
	media.Backfill(ctx, s.media, model, rec)
	query.StripHidden(model, rec)
	return rec
}

func (s *Service) invalidate(model *domain.Model) {
	if s.cache != nil {
		s.cache.InvalidateTable(model.TableName)
	}
}

// notify fans a committed change out to webhooks and subscribers.
func (s *Service) notify(ctx context.Context, model *domain.Model, event string, data map[string]any) {
	if s.webhooks != nil {
		s.webhooks.Dispatch(ctx, model, event, data)
	}
	if s.events != nil {
		s.events.Broadcast(model, event, data)
	}
}

func (s *Service) validate(ctx context.Context, model *domain.Model, input map[string]any, isUpdate bool, recordID int64) error {
	errs, err := s.validator.Validate(ctx, model, input, isUpdate, recordID)
	if err != nil {
		return storageError(model.TableName, err)
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
