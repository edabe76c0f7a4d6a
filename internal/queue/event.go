// Package queue defines the reservation events exchanged over RabbitMQ,
// publishes them and runs the audit consumer.
package queue

import (
	"time"

	"github.com/iliyamo/course-enrollment/internal/model"
)

// EventsQueue is the durable queue carrying every reservation event.
const EventsQueue = "reservation.events"

// Event types.
const (
	EventConfirmed     = "reservation.confirmed"
	EventStatusChanged = "reservation.status_changed"
)

// ReservationEvent is published after a confirmation or an administrative
// status change has been committed.  It carries enough information for the
// audit trail and for notifications without querying the database.
type ReservationEvent struct {
	Type             string       `json:"type"`
	ReservationID    string       `json:"reservation_id"`
	From             model.Status `json:"from"`
	To               model.Status `json:"to"`
	GuardianName     string       `json:"guardian_name"`
	GuardianEmail    string       `json:"guardian_email"`
	ParticipantCount int          `json:"participant_count"`
	TotalAmount      int64        `json:"total_amount"`
	ReceiptRef       string       `json:"receipt_ref,omitempty"`
	Note             string       `json:"note,omitempty"`
	SpotsLeft        *int         `json:"spots_left,omitempty"`
	OccurredAt       time.Time    `json:"occurred_at"`
}

// NewEvent builds an event for res having moved from -> res.Status.
func NewEvent(typ string, res *model.Reservation, from model.Status, spotsLeft int, at time.Time) ReservationEvent {
	ev := ReservationEvent{
		Type:             typ,
		ReservationID:    res.ID,
		From:             from,
		To:               res.Status,
		GuardianName:     res.Guardian.Name,
		GuardianEmail:    res.Guardian.Email,
		ParticipantCount: res.ParticipantCount,
		TotalAmount:      res.TotalAmount,
		SpotsLeft:        &spotsLeft,
		OccurredAt:       at.UTC(),
	}
	if res.ReceiptRef != nil {
		ev.ReceiptRef = *res.ReceiptRef
	}
	if res.ReviewNote != nil {
		ev.Note = *res.ReviewNote
	}
	return ev
}
