package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/course-enrollment/internal/ledger"
	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/queue"
	"github.com/iliyamo/course-enrollment/internal/repository"
)

// overrideTargets are the statuses an administrator may set directly.
var overrideTargets = map[model.Status]bool{
	model.StatusApproved: true,
	model.StatusPaid:     true,
	model.StatusRejected: true,
}

// OverrideResult is returned by Override.  SpotsLeft is nil when the
// ledger could not be read after the change was committed.
type OverrideResult struct {
	Reservation *model.Reservation `json:"reservation"`
	SpotsLeft   *int               `json:"spotsLeft,omitempty"`
}

// Override moves a reservation to target.  The transition must be in the
// transition table; rejecting an active reservation frees its spots simply
// because the ledger no longer counts it.
func (s *ReservationService) Override(ctx context.Context, id string, target model.Status, note string) (out OverrideResult, err error) {
	defer func() { s.record("override", err) }()

	if !s.isAdmin(ctx) {
		return OverrideResult{}, errUnauthorized
	}
	if !overrideTargets[target] {
		return OverrideResult{}, invalid("status", "status must be APPROVED, PAID or REJECTED")
	}
	var notePtr *string
	if note = strings.TrimSpace(note); note != "" {
		notePtr = &note
	}

	var (
		res  *model.Reservation
		from model.Status
	)
	now := s.now()
	err = s.store.InTx(ctx, func(tx repository.TxStore) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("reservation not found")
		}
		if err != nil {
			return unavailable(err)
		}
		if err := model.ValidateTransition(cur.Status, target); err != nil {
			return &Error{Code: CodeValidation, Field: "status", Message: err.Error(), Err: err}
		}
		if err := tx.UpdateStatus(ctx, cur.ID, cur.Status, target, notePtr, now); err != nil {
			return unavailable(err)
		}
		from = cur.Status
		cur.Status = target
		cur.ReviewNote = notePtr
		cur.ReviewedAt = &now
		cur.UpdatedAt = now
		res = cur
		return nil
	})
	if err != nil {
		var se *Error
		if !errors.As(err, &se) {
			err = unavailable(err)
		}
		return OverrideResult{}, err
	}

	out = OverrideResult{Reservation: res}
	var left int
	if a, err := ledger.Snapshot(ctx, s.store); err != nil {
		// the override is committed; report it without a ledger figure
		s.log.Warn("ledger read after override failed", "reservation_id", res.ID, "err", err)
	} else {
		s.metrics.ObserveCapacity(a)
		left = a.Left
		out.SpotsLeft = &left
	}
	s.log.Info("reservation status overridden", "reservation_id", res.ID, "from", from, "to", target, "participants", res.ParticipantCount)
	ev := queue.NewEvent(queue.EventStatusChanged, res, from, left, now)
	if out.SpotsLeft == nil {
		ev.SpotsLeft = nil
	}
	s.publish(ctx, ev)
	return out, nil
}

// Get returns one reservation for the admin detail view.
func (s *ReservationService) Get(ctx context.Context, id string) (*model.Reservation, error) {
	if !s.isAdmin(ctx) {
		return nil, errUnauthorized
	}
	res, err := s.store.Get(ctx, strings.TrimSpace(id))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("reservation not found")
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return res, nil
}

// Search matches q against guardian name, email, phone and id.
func (s *ReservationService) Search(ctx context.Context, q string) ([]model.Reservation, error) {
	if !s.isAdmin(ctx) {
		return nil, errUnauthorized
	}
	out, err := s.store.Search(ctx, q, repository.MaxSearchResults)
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// ReceiptURL issues a short lived link to the stored receipt.
func (s *ReservationService) ReceiptURL(ctx context.Context, id string) (string, time.Time, error) {
	res, err := s.Get(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if res.ReceiptRef == nil || *res.ReceiptRef == "" {
		return "", time.Time{}, notFound("reservation has no receipt")
	}
	url, exp, err := s.receipts.SignedURL(ctx, *res.ReceiptRef)
	if err != nil {
		return "", time.Time{}, &Error{Code: CodeStoreUnavailable, Message: "receipt storage unavailable, retry later", Err: err}
	}
	return url, exp, nil
}

// Stats returns the ledger together with the number of reservations in
// every status.  Statuses without reservations are reported as zero.
func (s *ReservationService) Stats(ctx context.Context) (model.CapacityStats, error) {
	if !s.isAdmin(ctx) {
		return model.CapacityStats{}, errUnauthorized
	}
	a, err := ledger.Snapshot(ctx, s.store)
	if err != nil {
		return model.CapacityStats{}, unavailable(err)
	}
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return model.CapacityStats{}, unavailable(err)
	}
	st := model.CapacityStats{Availability: a, Pct: a.Pct(), StatusCounts: make(map[model.Status]int, len(model.AllStatuses))}
	for _, status := range model.AllStatuses {
		st.StatusCounts[status] = counts[status]
	}
	s.metrics.ObserveCapacity(a)
	return st, nil
}

// SetTotal replaces the configured capacity.  Lowering it below the spots
// already taken is allowed; left is then reported as zero.
func (s *ReservationService) SetTotal(ctx context.Context, total int) (model.Availability, error) {
	if !s.isAdmin(ctx) {
		return model.Availability{}, errUnauthorized
	}
	if total < 0 {
		return model.Availability{}, invalid("total", "total must be zero or greater")
	}
	if err := s.store.SetCapacityTotal(ctx, total, s.now()); err != nil {
		return model.Availability{}, unavailable(err)
	}
	s.log.Info("capacity total updated", "total", total)
	return s.Availability(ctx)
}
