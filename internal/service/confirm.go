package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/iliyamo/course-enrollment/internal/ledger"
	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/monitoring"
	"github.com/iliyamo/course-enrollment/internal/queue"
	"github.com/iliyamo/course-enrollment/internal/repository"
	"github.com/iliyamo/course-enrollment/internal/storage"
)

// Receipt is an uploaded payment proof.  MediaType is the type declared by
// the client; when it is empty or generic the content is sniffed.  Err
// carries a transport failure (oversized or malformed upload); Confirm
// reports it only once the reservation is known to exist.
type Receipt struct {
	Filename  string
	MediaType string
	Size      int64
	Body      io.Reader
	Err       error
}

// ConfirmResult is returned by Confirm.  Idempotent is set when the
// reservation was already active and nothing was written.
type ConfirmResult struct {
	Status     model.Status `json:"status"`
	SpotsLeft  int          `json:"spotsLeft"`
	Idempotent bool         `json:"-"`
}

// sniffLen is how much of the body mimetype needs to identify the format.
const sniffLen = 3072

// Confirm attaches a receipt to a STARTED reservation and moves it to
// CONFIRMED when its participants still fit.  The receipt is stored first;
// if the capacity transaction then fails the object is deleted again before
// returning, so a failed confirm leaves neither an orphaned receipt nor a
// changed reservation.
func (s *ReservationService) Confirm(ctx context.Context, id string, rc *Receipt) (out ConfirmResult, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveConfirm(time.Since(started))
		if err == nil && out.Idempotent {
			s.metrics.Reservation("confirm", monitoring.OutcomeIdempotent)
			return
		}
		s.record("confirm", err)
	}()

	id = strings.TrimSpace(id)
	if id == "" {
		return ConfirmResult{}, invalid("reservationId", "reservation id is required")
	}
	res, err := s.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ConfirmResult{}, notFound("reservation not found")
	}
	if err != nil {
		return ConfirmResult{}, unavailable(err)
	}

	mediaType, body, err := s.checkReceipt(rc)
	if err != nil {
		return ConfirmResult{}, err
	}

	if res.Status.IsActive() {
		return s.alreadyConfirmed(ctx, res)
	}
	if err := confirmable(res); err != nil {
		return ConfirmResult{}, err
	}

	ref, err := s.receipts.Put(ctx, res.ID, mediaType, body, rc.Size)
	if err != nil {
		s.log.Error("receipt upload failed", "reservation_id", res.ID, "err", err)
		return ConfirmResult{}, &Error{Code: CodeUploadFailed, Message: "receipt upload failed, retry later", Err: err}
	}

	var (
		avail model.Availability
		cur   *model.Reservation
		idem  bool
	)
	now := s.now()
	err = s.store.InTx(ctx, func(tx repository.TxStore) error {
		// capacity row first, reservation row second
		a, err := ledger.Snapshot(ctx, tx)
		if err != nil {
			return unavailable(err)
		}
		avail = a
		cur, err = tx.GetForUpdate(ctx, res.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("reservation not found")
			}
			return unavailable(err)
		}
		if cur.Status.IsActive() {
			idem = true
			return nil
		}
		if err := confirmable(cur); err != nil {
			return err
		}
		if !avail.Fits(cur.ParticipantCount) {
			return errExhausted
		}
		if err := tx.MarkConfirmed(ctx, cur.ID, ref, now); err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		if !s.committedRef(ctx, res.ID, ref) {
			s.compensate(ctx, res.ID, ref)
		}
		var se *Error
		if !errors.As(err, &se) {
			err = unavailable(err)
		}
		return ConfirmResult{}, err
	}

	if idem {
		// a concurrent confirm won; drop our object unless it is the one referenced
		if cur.ReceiptRef == nil || *cur.ReceiptRef != ref {
			s.compensate(ctx, res.ID, ref)
		}
		return ConfirmResult{Status: cur.Status, SpotsLeft: avail.Left, Idempotent: true}, nil
	}

	left := avail.Left - cur.ParticipantCount
	cur.Status = model.StatusConfirmed
	cur.ReceiptRef = &ref
	cur.UpdatedAt = now
	s.metrics.ObserveCapacity(model.NewAvailability(avail.Total, avail.Taken+cur.ParticipantCount))
	s.log.Info("reservation confirmed", "reservation_id", cur.ID, "participants", cur.ParticipantCount, "receipt_ref", ref, "spots_left", left)
	s.publish(ctx, queue.NewEvent(queue.EventConfirmed, cur, model.StatusStarted, left, now))
	return ConfirmResult{Status: model.StatusConfirmed, SpotsLeft: left}, nil
}

// alreadyConfirmed answers a retried confirm with the current ledger.
func (s *ReservationService) alreadyConfirmed(ctx context.Context, res *model.Reservation) (ConfirmResult, error) {
	a, err := ledger.Snapshot(ctx, s.store)
	if err != nil {
		return ConfirmResult{}, unavailable(err)
	}
	return ConfirmResult{Status: res.Status, SpotsLeft: a.Left, Idempotent: true}, nil
}

// confirmable rejects reservations that cannot move to CONFIRMED.
func confirmable(res *model.Reservation) error {
	if res.Status != model.StatusStarted {
		return invalid("reservationId", "reservation is %s and cannot be confirmed", res.Status)
	}
	if res.Expired() {
		return invalid("reservationId", "reservation expired, start a new one")
	}
	return nil
}

// checkReceipt validates presence, size and media type.  The returned
// reader replays any bytes consumed while sniffing.
func (s *ReservationService) checkReceipt(rc *Receipt) (string, io.Reader, error) {
	if rc != nil && rc.Err != nil {
		return "", nil, invalid("receipt", "%v", rc.Err)
	}
	if rc == nil || rc.Body == nil {
		return "", nil, invalid("receipt", "receipt file is required")
	}
	if rc.Size <= 0 {
		return "", nil, invalid("receipt", "receipt file is empty")
	}
	if rc.Size > s.maxReceiptBytes {
		return "", nil, invalid("receipt", "receipt exceeds %d bytes", s.maxReceiptBytes)
	}

	mediaType := strings.ToLower(strings.TrimSpace(rc.MediaType))
	body := rc.Body
	if mediaType == "" || strings.HasPrefix(mediaType, "application/octet-stream") {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(rc.Body, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return "", nil, invalid("receipt", "receipt could not be read")
		}
		head = head[:n]
		mediaType = mimetype.Detect(head).String()
		body = io.MultiReader(bytes.NewReader(head), rc.Body)
	}
	if _, ok := storage.Ext(mediaType); !ok {
		return "", nil, invalid("receipt", "receipt must be a PDF, JPEG, PNG or WEBP file")
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	return mediaType, body, nil
}

// committedRef reports whether the stored reservation references ref.  A
// commit can fail on the client after the server applied it; the object is
// then kept.  When the row cannot be read the object is kept as well: an
// orphaned object is recoverable, a reference to a deleted one is not.
func (s *ReservationService) committedRef(ctx context.Context, id, ref string) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	cur, err := s.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false
	}
	if err != nil {
		s.log.Warn("cannot verify receipt after failed confirm, keeping object", "reservation_id", id, "receipt_ref", ref, "err", err)
		return true
	}
	return cur.ReceiptRef != nil && *cur.ReceiptRef == ref
}

// compensate deletes a stored receipt after a failed confirm.  It runs even
// when the request context is already cancelled.
func (s *ReservationService) compensate(ctx context.Context, id, ref string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.receipts.Delete(ctx, ref); err != nil {
		s.metrics.Compensation(false)
		s.log.Error("receipt compensation failed, object orphaned", "reservation_id", id, "receipt_ref", ref, "err", err)
		return
	}
	s.metrics.Compensation(true)
	s.log.Warn("receipt deleted after failed confirm", "reservation_id", id, "receipt_ref", ref)
}
