package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/course-enrollment/internal/model"
)

// activeParticipantsQuery sums the slots held by reservations in one of
// model.ActiveStatuses, bound by activeStatusArgs.
var activeParticipantsQuery = `SELECT COALESCE(SUM(participant_count), 0) FROM reservations
	WHERE status IN (?` + strings.Repeat(", ?", len(model.ActiveStatuses)-1) + `)`

func activeStatusArgs() []any {
	args := make([]any, len(model.ActiveStatuses))
	for i, st := range model.ActiveStatuses {
		args[i] = string(st)
	}
	return args
}

// CapacityTotal reads the configured total without locking.
func (r *ReservationRepo) CapacityTotal(ctx context.Context) (int, error) {
	return capacityTotal(ctx, r.db, r.defaultTotal, false)
}

// ActiveParticipants returns the slots currently taken.
func (r *ReservationRepo) ActiveParticipants(ctx context.Context) (int, error) {
	return activeParticipants(ctx, r.db)
}

// SetCapacityTotal overwrites the singleton.  The upsert takes the same row
// lock that confirmations hold, so a change never interleaves with one.
func (r *ReservationRepo) SetCapacityTotal(ctx context.Context, total int, now time.Time) error {
	const q = `INSERT INTO capacity_config (id, total, updated_at) VALUES (1, ?, ?)
		ON DUPLICATE KEY UPDATE total = VALUES(total), updated_at = VALUES(updated_at)`
	if _, err := r.db.ExecContext(ctx, q, total, now.UTC()); err != nil {
		return fmt.Errorf("set capacity: %w", err)
	}
	return nil
}

func capacityTotal(ctx context.Context, q querier, fallback int, forUpdate bool) (int, error) {
	query := `SELECT total FROM capacity_config WHERE id = 1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var total int
	err := q.QueryRowContext(ctx, query).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read capacity: %w", err)
	}
	return total, nil
}

func activeParticipants(ctx context.Context, q querier) (int, error) {
	var taken int
	if err := q.QueryRowContext(ctx, activeParticipantsQuery, activeStatusArgs()...).Scan(&taken); err != nil {
		return 0, fmt.Errorf("sum active participants: %w", err)
	}
	return taken, nil
}
