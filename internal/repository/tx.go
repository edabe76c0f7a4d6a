package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/course-enrollment/internal/model"
)

// TxStore is the view of the store available inside InTx.  Reads lock the
// rows they touch, so callers must acquire the capacity row before any
// reservation row to keep a single lock order.
type TxStore interface {
	// CapacityTotal reads the total and locks the capacity row.
	CapacityTotal(ctx context.Context) (int, error)
	ActiveParticipants(ctx context.Context) (int, error)
	// GetForUpdate reads and locks one reservation.  ErrNotFound when absent.
	GetForUpdate(ctx context.Context, id string) (*model.Reservation, error)
	// MarkConfirmed moves a STARTED reservation to CONFIRMED and stores the
	// receipt reference.  ErrStatusChanged when the row is no longer STARTED.
	MarkConfirmed(ctx context.Context, id, receiptRef string, now time.Time) error
	// UpdateStatus moves a reservation from one status to another and
	// records the review note.  ErrStatusChanged when the row is not in from.
	UpdateStatus(ctx context.Context, id string, from, to model.Status, note *string, now time.Time) error
}

// InTx runs fn inside a database transaction.  The transaction commits when
// fn returns nil and rolls back otherwise.
func (r *ReservationRepo) InTx(ctx context.Context, fn func(TxStore) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&reservationTx{tx: tx, defaultTotal: r.defaultTotal}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

type reservationTx struct {
	tx           *sql.Tx
	defaultTotal int
}

func (t *reservationTx) CapacityTotal(ctx context.Context) (int, error) {
	return capacityTotal(ctx, t.tx, t.defaultTotal, true)
}

func (t *reservationTx) ActiveParticipants(ctx context.Context) (int, error) {
	return activeParticipants(ctx, t.tx)
}

func (t *reservationTx) GetForUpdate(ctx context.Context, id string) (*model.Reservation, error) {
	return getReservation(ctx, t.tx, id, true)
}

func (t *reservationTx) MarkConfirmed(ctx context.Context, id, receiptRef string, now time.Time) error {
	const q = `UPDATE reservations SET status = 'CONFIRMED', receipt_ref = ?, updated_at = ?
		WHERE id = ? AND status = 'STARTED'`
	res, err := t.tx.ExecContext(ctx, q, receiptRef, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	return expectOneRow(res)
}

func (t *reservationTx) UpdateStatus(ctx context.Context, id string, from, to model.Status, note *string, now time.Time) error {
	const q = `UPDATE reservations SET status = ?, review_note = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`
	var n sql.NullString
	if note != nil {
		n = sql.NullString{String: *note, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, q, string(to), n, now.UTC(), now.UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusChanged
	}
	return nil
}
