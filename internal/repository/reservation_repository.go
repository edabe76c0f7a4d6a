package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/course-enrollment/internal/model"
)

// MaxSearchResults caps the rows returned by Search.
const MaxSearchResults = 500

// querier is satisfied by both *sql.DB and *sql.Tx so that row mapping is
// shared between plain reads and transactional reads.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReservationRepo provides data access to the reservations table and the
// capacity_config singleton.  All timestamps are stored in UTC.
type ReservationRepo struct {
	db           *sql.DB
	defaultTotal int
}

// NewReservationRepo returns a repo bound to db.  defaultTotal is reported
// as the capacity when the capacity_config row is missing.
func NewReservationRepo(db *sql.DB, defaultTotal int) *ReservationRepo {
	return &ReservationRepo{db: db, defaultTotal: defaultTotal}
}

// DB exposes the underlying handle for health checks.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

const reservationColumns = `id, guardian_name, guardian_phone, guardian_email, participants,
	participant_count, total_amount, status, receipt_ref, review_note,
	reviewed_at, expired_at, created_at, updated_at`

// Create inserts a new reservation.  The caller fills every field; the
// participants slice is stored as a JSON array.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	parts, err := json.Marshal(res.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	const q = `INSERT INTO reservations (id, guardian_name, guardian_phone, guardian_email,
		participants, participant_count, total_amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q,
		res.ID, res.Guardian.Name, res.Guardian.Phone, res.Guardian.Email,
		parts, res.ParticipantCount, res.TotalAmount, string(res.Status),
		res.CreatedAt.UTC(), res.UpdatedAt.UTC(),
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrConflict
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// Get loads one reservation by id.  ErrNotFound when absent.
func (r *ReservationRepo) Get(ctx context.Context, id string) (*model.Reservation, error) {
	return getReservation(ctx, r.db, id, false)
}

// Search returns reservations whose guardian name, email, phone or id
// contains q, newest first.  An empty q lists everything.  The result is
// capped at limit rows (MaxSearchResults when limit is not positive).
func (r *ReservationRepo) Search(ctx context.Context, q string, limit int) ([]model.Reservation, error) {
	if limit <= 0 || limit > MaxSearchResults {
		limit = MaxSearchResults
	}
	query := `SELECT ` + reservationColumns + ` FROM reservations`
	args := make([]any, 0, 5)
	if q = strings.TrimSpace(q); q != "" {
		pattern := "%" + escapeLike(q) + "%"
		query += ` WHERE guardian_name LIKE ? OR guardian_email LIKE ? OR guardian_phone LIKE ? OR id LIKE ?`
		args = append(args, pattern, pattern, pattern, pattern)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search reservations: %w", err)
	}
	defer rows.Close()

	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of reservations per status.  Statuses
// without rows are absent from the map.
func (r *ReservationRepo) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reservations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	counts := make(map[model.Status]int)
	for rows.Next() {
		var (
			st string
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[model.Status(st)] = n
	}
	return counts, rows.Err()
}

// ExpireStarted stamps expired_at on STARTED reservations created before
// cutoff that are not yet marked.  Status is left untouched and rows are
// never deleted.  It returns the number of rows marked.
func (r *ReservationRepo) ExpireStarted(ctx context.Context, cutoff, now time.Time) (int64, error) {
	const q = `UPDATE reservations SET expired_at = ?, updated_at = ?
		WHERE status = 'STARTED' AND expired_at IS NULL AND created_at < ?`
	res, err := r.db.ExecContext(ctx, q, now.UTC(), now.UTC(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire started: %w", err)
	}
	return res.RowsAffected()
}

// getReservation reads one row, optionally locking it.
func getReservation(ctx context.Context, q querier, id string, forUpdate bool) (*model.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	res, err := scanReservation(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res        model.Reservation
		parts      []byte
		status     string
		receiptRef sql.NullString
		reviewNote sql.NullString
		reviewedAt sql.NullTime
		expiredAt  sql.NullTime
	)
	err := s.Scan(
		&res.ID, &res.Guardian.Name, &res.Guardian.Phone, &res.Guardian.Email, &parts,
		&res.ParticipantCount, &res.TotalAmount, &status, &receiptRef, &reviewNote,
		&reviewedAt, &expiredAt, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(parts, &res.Participants); err != nil {
		return nil, fmt.Errorf("decode participants of %s: %w", res.ID, err)
	}
	res.Status = model.Status(status)
	if receiptRef.Valid {
		v := receiptRef.String
		res.ReceiptRef = &v
	}
	if reviewNote.Valid {
		v := reviewNote.String
		res.ReviewNote = &v
	}
	if reviewedAt.Valid {
		v := reviewedAt.Time
		res.ReviewedAt = &v
	}
	if expiredAt.Valid {
		v := expiredAt.Time
		res.ExpiredAt = &v
	}
	return &res, nil
}

// escapeLike escapes the LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
