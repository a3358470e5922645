// Package fulfillment implements the draft to order lifecycle: draft
// validation and conversion, inventory commitment and release, and bill
// settlement derived from recorded payments.
package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options tunes a Service.
type Options struct {
	DefaultCurrency string
	// OperationTimeout bounds every use case. Zero disables the bound.
	OperationTimeout time.Duration
	// LockTTL is the lease length of per-entity locks.
	LockTTL time.Duration
	// AllowBackorder lets reservations exceed available stock.
	AllowBackorder bool
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		DefaultCurrency:  "USD",
		OperationTimeout: 5 * time.Second,
		LockTTL:          30 * time.Second,
	}
}

// Service exposes the produced fulfillment operations. Every call is a
// request-scoped unit of work; there is no background state.
type Service struct {
	store  Store
	ledger *Ledger
	events EventPublisher
	logger *zap.Logger
	opts   Options

	nowFunc func() time.Time
	newID   func() string
}

// NewService wires a Service. A nil publisher drops events.
func NewService(store Store, events EventPublisher, logger *zap.Logger, opts Options) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = DefaultOptions().DefaultCurrency
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultOptions().LockTTL
	}
	return &Service{
		store:   store,
		ledger:  NewLedger(store, logger, opts.AllowBackorder),
		events:  events,
		logger:  logger,
		opts:    opts,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// detachedTimeout bounds work that must finish after the caller gave up:
// compensating releases and re-issued conversion commits.
func (s *Service) detachedTimeout() time.Duration {
	if s.opts.OperationTimeout > 0 {
		return s.opts.OperationTimeout
	}
	return DefaultOptions().OperationTimeout
}

func (s *Service) now() time.Time {
	return s.nowFunc().UTC()
}

// begin applies the operation timeout to ctx.
func (s *Service) begin(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.OperationTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

// withLock runs fn while holding the exclusive lease on key.
func (s *Service) withLock(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	release, err := s.store.Lock(ctx, key, s.opts.LockTTL)
	if err != nil {
		return wrap(op, err)
	}
	defer release()
	return fn(ctx)
}

func (s *Service) publish(ctx context.Context, ev Event) {
	ev.OccurredAt = s.now()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("type", ev.Type), zap.String("entity_id", ev.EntityID), zap.Error(err))
	}
}

// validateStoreID enforces the tenancy boundary before any store access.
func validateStoreID(op, storeID string) error {
	if storeID == "" {
		return &Error{Kind: KindInvalidStore, Op: op, Msg: "store id is required"}
	}
	u, err := uuid.Parse(storeID)
	if err != nil {
		return &Error{Kind: KindInvalidStore, Op: op, Msg: "store id must be a uuid", Err: err}
	}
	// braced, urn and undashed forms parse too but would key a second partition
	if u.String() != storeID {
		return &Error{Kind: KindInvalidStore, Op: op, Msg: "store id must be a canonical lowercase uuid"}
	}
	return nil
}

// requireID rejects an empty entity id before it reaches the store.
func requireID(op, name, id string) error {
	if id == "" {
		return &Error{Kind: KindMissingArguments, Op: op, Msg: name + " is required"}
	}
	return nil
}
