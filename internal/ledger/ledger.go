// Package ledger derives capacity availability from the reservation store.
// Nothing is cached: every call aggregates the active reservations again so
// the figures cannot drift from the stored statuses.
package ledger

import (
	"context"

	"github.com/iliyamo/course-enrollment/internal/model"
)

// Source is anything that can report the configured total and the slots
// held by active reservations.  Both the plain store and a transaction
// scoped store satisfy it; inside a transaction the reads are locking.
type Source interface {
	CapacityTotal(ctx context.Context) (int, error)
	ActiveParticipants(ctx context.Context) (int, error)
}

// Snapshot computes {total, taken, left} from src.  The total is read
// first so that, inside a transaction, the capacity row lock is taken
// before the reservations are summed.
func Snapshot(ctx context.Context, src Source) (model.Availability, error) {
	total, err := src.CapacityTotal(ctx)
	if err != nil {
		return model.Availability{}, err
	}
	taken, err := src.ActiveParticipants(ctx)
	if err != nil {
		return model.Availability{}, err
	}
	return model.NewAvailability(total, taken), nil
}
