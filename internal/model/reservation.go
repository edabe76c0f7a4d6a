package model

import (
	"fmt"
	"slices"
	"time"
)

// Status is the lifecycle state of a Reservation.  The set of values is
// closed; anything outside the constants below is rejected by ParseStatus.
type Status string

const (
	StatusStarted   Status = "STARTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusApproved  Status = "APPROVED"
	StatusPaid      Status = "PAID"
	StatusRejected  Status = "REJECTED"
)

// AllStatuses lists every status in lifecycle order.  Admin statistics use
// it so that zero counts are still reported.
var AllStatuses = []Status{StatusStarted, StatusConfirmed, StatusApproved, StatusPaid, StatusRejected}

// ActiveStatuses are the statuses that consume capacity.
var ActiveStatuses = []Status{StatusConfirmed, StatusApproved, StatusPaid}

// transitions is the only place where legal status changes are declared.
// STARTED -> CONFIRMED is guarded by a stored receipt and a capacity check;
// every other edge is an administrative override.
var transitions = map[Status]map[Status]bool{
	StatusStarted:   {StatusConfirmed: true},
	StatusConfirmed: {StatusApproved: true, StatusPaid: true, StatusRejected: true},
	StatusApproved:  {StatusPaid: true, StatusRejected: true},
	StatusPaid:      {StatusRejected: true},
	StatusRejected:  {},
}

// ParseStatus converts a raw string into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// IsActive reports whether the status counts against capacity.
func (s Status) IsActive() bool {
	return slices.Contains(ActiveStatuses, s)
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// TransitionError describes an illegal status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// ValidateTransition returns a *TransitionError when from -> to is not in
// the transition table.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Guardian is the contact person responsible for the participants.
type Guardian struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required"`
	Email string `json:"email" validate:"required"`
}

// Participant is one enrolled person.  Age is kept as free text because
// the enrollment form accepts values such as "7" or "7 y 6 meses".
type Participant struct {
	Name  string `json:"name" validate:"required"`
	Age   string `json:"age" validate:"required"`
	Notes string `json:"notes,omitempty"`
}

// Reservation is one booking attempt.  ParticipantCount is always
// len(Participants) and TotalAmount is computed server side at creation;
// neither is accepted from callers.
//
// Fields:
//
//	ID               – opaque UUID, immutable.
//	Guardian         – contact of the person enrolling.
//	Participants     – 1 to 3 entries, in the order given.
//	ParticipantCount – denormalized len(Participants) for ledger sums.
//	TotalAmount      – price(ParticipantCount), immutable.
//	Status           – lifecycle state.
//	ReceiptRef       – object key of the uploaded receipt (nullable).
//	ReviewNote       – optional note left by the last admin override.
//	ReviewedAt       – time of the last admin override (nullable).
//	ExpiredAt        – set by the stale-start sweep (nullable).
type Reservation struct {
	ID               string        `json:"id"`
	Guardian         Guardian      `json:"guardian"`
	Participants     []Participant `json:"participants"`
	ParticipantCount int           `json:"participantCount"`
	TotalAmount      int64         `json:"totalAmount"`
	Status           Status        `json:"status"`
	ReceiptRef       *string       `json:"receiptRef,omitempty"`
	ReviewNote       *string       `json:"reviewNote,omitempty"`
	ReviewedAt       *time.Time    `json:"reviewedAt,omitempty"`
	ExpiredAt        *time.Time    `json:"expiredAt,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Expired reports whether the stale-start sweep has retired this
// reservation.  Only STARTED reservations are ever marked.
func (r *Reservation) Expired() bool { return r.ExpiredAt != nil }
