package service

import (
	"context"
	"errors"

	"github.com/iliyamo/course-enrollment/internal/ledger"
	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/pricing"
	"github.com/iliyamo/course-enrollment/internal/repository"
)

// StartResult is returned by Start.
type StartResult struct {
	ReservationID string `json:"reservationId"`
	TotalAmount   int64  `json:"totalAmount"`
	Currency      string `json:"currency"`
	SpotsLeft     int    `json:"spotsLeft"`
}

// createAttempts bounds id regeneration when an insert hits an existing id.
const createAttempts = 3

// Start validates in and records a STARTED reservation.  The availability
// check is advisory: no capacity is held, Confirm enforces the limit.
// Nothing is written when validation or the check fails.
func (s *ReservationService) Start(ctx context.Context, in StartInput) (res StartResult, err error) {
	defer func() { s.record("start", err) }()

	in.normalize()
	if err := s.check(&in); err != nil {
		return StartResult{}, err
	}
	n := len(in.Participants)
	amount, err := pricing.Price(n)
	if err != nil {
		return StartResult{}, invalid("participants", "%v", err)
	}

	avail, err := ledger.Snapshot(ctx, s.store)
	if err != nil {
		return StartResult{}, unavailable(err)
	}
	if avail.Left <= 0 {
		return StartResult{}, errExhausted
	}

	now := s.now()
	r := &model.Reservation{
		ID:               s.newID(),
		Guardian:         in.Guardian,
		Participants:     in.Participants,
		ParticipantCount: n,
		TotalAmount:      amount,
		Status:           model.StatusStarted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i := 0; ; i++ {
		err = s.store.Create(ctx, r)
		if !errors.Is(err, repository.ErrConflict) || i == createAttempts-1 {
			break
		}
		s.log.Warn("reservation id collision, regenerating", "reservation_id", r.ID)
		r.ID = s.newID()
	}
	if err != nil {
		return StartResult{}, unavailable(err)
	}
	s.log.Info("reservation started", "reservation_id", r.ID, "participants", n, "total_amount", amount)
	return StartResult{ReservationID: r.ID, TotalAmount: amount, Currency: pricing.Currency, SpotsLeft: avail.Left}, nil
}
