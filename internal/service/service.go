// Package service orchestrates the enrollment use cases: starting a
// reservation, confirming it with a payment receipt and the administrative
// overrides.  Capacity is never cached here; every decision reads the
// ledger from the store.
package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/iliyamo/course-enrollment/internal/ledger"
	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/monitoring"
	"github.com/iliyamo/course-enrollment/internal/queue"
	"github.com/iliyamo/course-enrollment/internal/repository"
)

// Store is the durable record store.  *repository.ReservationRepo
// implements it.
type Store interface {
	ledger.Source
	Create(ctx context.Context, res *model.Reservation) error
	Get(ctx context.Context, id string) (*model.Reservation, error)
	Search(ctx context.Context, q string, limit int) ([]model.Reservation, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
	SetCapacityTotal(ctx context.Context, total int, now time.Time) error
	InTx(ctx context.Context, fn func(repository.TxStore) error) error
}

// ReceiptStore keeps uploaded receipts.  *storage.S3ReceiptStore
// implements it.
type ReceiptStore interface {
	Put(ctx context.Context, reservationID, mediaType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, ref string) error
	SignedURL(ctx context.Context, ref string) (string, time.Time, error)
}

// Notifier receives committed reservation events.  Failures are logged and
// never fail the request.
type Notifier interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// AdminFunc reports whether the caller behind ctx is an administrator.
type AdminFunc func(ctx context.Context) bool

// Options carries the collaborators of ReservationService.  Store,
// Receipts and IsAdmin are required; the rest have defaults.
type Options struct {
	Store           Store
	Receipts        ReceiptStore
	IsAdmin         AdminFunc
	Notifier        Notifier
	Metrics         *monitoring.Metrics
	Logger          *slog.Logger
	MaxReceiptBytes int64
	Now             func() time.Time
	NewID           func() string
}

// ReservationService implements Start, Confirm and the admin operations.
type ReservationService struct {
	store           Store
	receipts        ReceiptStore
	isAdmin         AdminFunc
	notifier        Notifier
	metrics         *monitoring.Metrics
	log             *slog.Logger
	validate        *validator.Validate
	maxReceiptBytes int64
	now             func() time.Time
	newID           func() string
}

// DefaultMaxReceiptBytes bounds receipt uploads when no limit is configured.
const DefaultMaxReceiptBytes int64 = 10 << 20

func NewReservationService(opts Options) *ReservationService {
	if opts.Store == nil || opts.Receipts == nil || opts.IsAdmin == nil {
		panic("service: store, receipts and admin predicate are required")
	}
	s := &ReservationService{
		store:           opts.Store,
		receipts:        opts.Receipts,
		isAdmin:         opts.IsAdmin,
		notifier:        opts.Notifier,
		metrics:         opts.Metrics,
		log:             opts.Logger,
		validate:        newValidator(),
		maxReceiptBytes: opts.MaxReceiptBytes,
		now:             opts.Now,
		newID:           opts.NewID,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.maxReceiptBytes <= 0 {
		s.maxReceiptBytes = DefaultMaxReceiptBytes
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Availability returns the live ledger.
func (s *ReservationService) Availability(ctx context.Context) (model.Availability, error) {
	a, err := ledger.Snapshot(ctx, s.store)
	if err != nil {
		return model.Availability{}, unavailable(err)
	}
	s.metrics.ObserveCapacity(a)
	return a, nil
}

// publish hands ev to the notifier outside the request's cancellation.
func (s *ReservationService) publish(ctx context.Context, ev queue.ReservationEvent) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.log.Warn("publish reservation event failed", "reservation_id", ev.ReservationID, "type", ev.Type, "err", err)
	}
}

// record counts the outcome of operation for err.
func (s *ReservationService) record(operation string, err error) {
	switch {
	case err == nil:
		s.metrics.Reservation(operation, monitoring.OutcomeOK)
	case CodeOf(err) == CodeStoreUnavailable || CodeOf(err) == CodeUploadFailed:
		s.metrics.Reservation(operation, monitoring.OutcomeFailed)
	default:
		s.metrics.Reservation(operation, monitoring.OutcomeRejected)
	}
}
