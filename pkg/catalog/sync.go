package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/platinummonkey/plughost/pkg/catalog")

// Operation is a catalog synchronization operation
type Operation string

const (
	OpCreate  Operation = "create"
	OpUpdate  Operation = "update"
	OpEnable  Operation = "enable"
	OpDisable Operation = "disable"
	OpDelete  Operation = "delete"
)

// Operations lists every valid operation
var Operations = []Operation{OpCreate, OpUpdate, OpEnable, OpDisable, OpDelete}

// ParseOperation validates an operation name
func ParseOperation(name string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == name {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, name)
}

// SyncConfig configures a Synchronizer
type SyncConfig struct {
	// Retries is the number of extra attempts on storage errors
	Retries int
	// RetryInterval is the initial backoff interval (default 100ms)
	RetryInterval time.Duration
	Logger        *logrus.Logger
}

// Synchronizer applies synchronization operations to a Store
type Synchronizer struct {
	store Store
	cfg   SyncConfig
	log   *logrus.Logger
}

// NewSynchronizer creates a synchronizer over store
func NewSynchronizer(store Store, cfg SyncConfig) *Synchronizer {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 100 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Synchronizer{store: store, cfg: cfg, log: log}
}

// Store returns the underlying record store
func (s *Synchronizer) Store() Store {
	return s.store
}

// Sync applies op to the record of id.
//
// create and update upsert the full record from fields, keeping the users of
// an existing record and forcing enabled=true. enable and disable only touch
// the enabled flag and delete removes the record; on an unknown id those three
// are no-ops. Store errors are wrapped with ErrStorageFailure.
func (s *Synchronizer) Sync(ctx context.Context, op Operation, id string, fields map[string]interface{}) error {
	ctx, span := tracer.Start(ctx, "catalog.Sync",
		trace.WithAttributes(
			attribute.String("catalog.operation", string(op)),
			attribute.String("plugin.id", id),
		),
	)
	defer span.End()

	var apply func(context.Context) error
	switch op {
	case OpCreate, OpUpdate:
		apply = func(ctx context.Context) error { return s.upsert(ctx, id, fields) }
	case OpEnable:
		apply = func(ctx context.Context) error { return s.setEnabled(ctx, id, true) }
	case OpDisable:
		apply = func(ctx context.Context) error { return s.setEnabled(ctx, id, false) }
	case OpDelete:
		apply = func(ctx context.Context) error { return s.delete(ctx, id) }
	default:
		err := fmt.Errorf("%w: %q", ErrUnknownOperation, op)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown operation")
		return err
	}

	if err := s.retry(ctx, apply); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync failed")
		return fmt.Errorf("%w: %s %s: %v", ErrStorageFailure, op, id, err)
	}

	s.log.WithFields(logrus.Fields{"plugin": id, "operation": op}).Debug("catalog synchronized")
	return nil
}

func (s *Synchronizer) upsert(ctx context.Context, id string, fields map[string]interface{}) error {
	rec := NewRecord(id, fields)

	existing, err := s.store.FindByID(ctx, id)
	switch {
	case err == nil:
		rec.Users = append([]string{}, existing.Users...)
	case !errors.Is(err, ErrRecordNotFound):
		return err
	}

	return s.store.Replace(ctx, rec)
}

func (s *Synchronizer) setEnabled(ctx context.Context, id string, enabled bool) error {
	err := s.store.SetEnabled(ctx, id, enabled)
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	return err
}

func (s *Synchronizer) delete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	return err
}

// retry runs fn with exponential backoff up to cfg.Retries extra attempts
func (s *Synchronizer) retry(ctx context.Context, fn func(context.Context) error) error {
	if s.cfg.Retries <= 0 {
		return fn(ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.Retries)), ctx)

	return backoff.RetryNotify(func() error {
		return fn(ctx)
	}, policy, func(err error, next time.Duration) {
		s.log.WithError(err).Warnf("catalog write failed, retrying in %s", next)
	})
}
