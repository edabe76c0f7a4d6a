package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/course-enrollment/internal/model"
	"github.com/iliyamo/course-enrollment/internal/queue"
	"github.com/iliyamo/course-enrollment/internal/repository"
	"github.com/iliyamo/course-enrollment/internal/storage"
)

// memStore is an in-memory Store.  InTx holds the store mutex for the
// whole transaction, which gives the same serialization a locked
// capacity row gives in MySQL.
type memStore struct {
	mu        sync.Mutex
	total     int
	rows      map[string]model.Reservation
	createErr error
	commitErr error
	readErr   error

	// lostCommitErr applies the transaction and still reports a failure,
	// like a connection dropped after the server committed.
	lostCommitErr error

	// beforeTx runs ahead of transaction n (1-based) without the lock held.
	beforeTx func(n int) error
	txs      atomic.Int32
}

func newMemStore(total int) *memStore {
	return &memStore{total: total, rows: make(map[string]model.Reservation)}
}

func (m *memStore) seed(id string, count int, status model.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := make([]model.Participant, count)
	for i := range parts {
		parts[i] = model.Participant{Name: fmt.Sprintf("child %d", i+1), Age: "7"}
	}
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	r := model.Reservation{
		ID:               id,
		Guardian:         model.Guardian{Name: "Guardian " + id, Phone: "+5690000" + id, Email: id + "@example.com"},
		Participants:     parts,
		ParticipantCount: count,
		TotalAmount:      int64(count) * 40000,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if status.IsActive() || status == model.StatusRejected {
		ref := "receipts/" + id + "/receipt-0.pdf"
		r.ReceiptRef = &ref
	}
	m.rows[id] = r
}

func (m *memStore) row(id string) model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memStore) taken() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sumActive(m.rows)
}

func sumActive(rows map[string]model.Reservation) int {
	n := 0
	for _, r := range rows {
		if r.Status.IsActive() {
			n += r.ParticipantCount
		}
	}
	return n
}

func (m *memStore) CapacityTotal(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.total, nil
}

func (m *memStore) ActiveParticipants(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sumActive(m.rows), nil
}

func (m *memStore) Create(_ context.Context, r *model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.rows[r.ID]; ok {
		return repository.ErrConflict
	}
	m.rows[r.ID] = *r
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) Search(_ context.Context, q string, limit int) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]model.Reservation, 0)
	for _, r := range m.rows {
		hay := strings.ToLower(strings.Join([]string{r.Guardian.Name, r.Guardian.Email, r.Guardian.Phone, r.ID}, "|"))
		if q == "" || strings.Contains(hay, q) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountByStatus(context.Context) (map[model.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.Status]int)
	for _, r := range m.rows {
		counts[r.Status]++
	}
	return counts, nil
}

func (m *memStore) SetCapacityTotal(_ context.Context, total int, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
	return nil
}

func (m *memStore) InTx(_ context.Context, fn func(repository.TxStore) error) error {
	n := int(m.txs.Add(1))
	if m.beforeTx != nil {
		if err := m.beforeTx(n); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{m: m, pending: make(map[string]model.Reservation)}
	if err := fn(tx); err != nil {
		return err
	}
	if m.commitErr != nil {
		return fmt.Errorf("commit: %w", m.commitErr)
	}
	for id, r := range tx.pending {
		m.rows[id] = r
	}
	if m.lostCommitErr != nil {
		return fmt.Errorf("commit: %w", m.lostCommitErr)
	}
	return nil
}

// memTx reads through its pending writes; m.mu is held by InTx.
type memTx struct {
	m       *memStore
	pending map[string]model.Reservation
}

func (t *memTx) view() map[string]model.Reservation {
	v := make(map[string]model.Reservation, len(t.m.rows))
	for id, r := range t.m.rows {
		v[id] = r
	}
	for id, r := range t.pending {
		v[id] = r
	}
	return v
}

func (t *memTx) CapacityTotal(context.Context) (int, error) { return t.m.total, nil }

func (t *memTx) ActiveParticipants(context.Context) (int, error) { return sumActive(t.view()), nil }

func (t *memTx) GetForUpdate(_ context.Context, id string) (*model.Reservation, error) {
	r, ok := t.view()[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (t *memTx) MarkConfirmed(_ context.Context, id, ref string, now time.Time) error {
	r, ok := t.view()[id]
	if !ok || r.Status != model.StatusStarted {
		return repository.ErrStatusChanged
	}
	r.Status = model.StatusConfirmed
	r.ReceiptRef = &ref
	r.UpdatedAt = now
	t.pending[id] = r
	return nil
}

func (t *memTx) UpdateStatus(_ context.Context, id string, from, to model.Status, note *string, now time.Time) error {
	r, ok := t.view()[id]
	if !ok || r.Status != from {
		return repository.ErrStatusChanged
	}
	r.Status = to
	r.ReviewNote = note
	r.ReviewedAt = &now
	r.UpdatedAt = now
	t.pending[id] = r
	return nil
}

// memReceipts is an in-memory ReceiptStore.
type memReceipts struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      int
	deleted   []string
	putErr    error
	deleteErr error
}

func newMemReceipts() *memReceipts { return &memReceipts{objects: make(map[string][]byte)} }

func (r *memReceipts) Put(_ context.Context, id, mediaType string, body io.Reader, _ int64) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts++
	if r.putErr != nil {
		return "", r.putErr
	}
	key, err := storage.Key("receipts", id, strconv.Itoa(r.puts), mediaType)
	if err != nil {
		return "", err
	}
	r.objects[key] = b
	return key, nil
}

func (r *memReceipts) Delete(_ context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.objects, ref)
	r.deleted = append(r.deleted, ref)
	return nil
}

func (r *memReceipts) SignedURL(_ context.Context, ref string) (string, time.Time, error) {
	return "https://receipts.example/" + ref + "?sig=abc", time.Date(2026, 2, 1, 11, 0, 0, 0, time.UTC), nil
}

func (r *memReceipts) has(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.objects[ref]
	return ok
}

// keys lists the stored objects of one reservation.
func (r *memReceipts) keys(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for k := range r.objects {
		if strings.HasPrefix(k, "receipts/"+id+"/") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (r *memReceipts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

type memNotifier struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
	err    error
}

func (n *memNotifier) Publish(_ context.Context, ev queue.ReservationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

type adminKey struct{}

func asAdmin(ctx context.Context) context.Context { return context.WithValue(ctx, adminKey{}, true) }

func isAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(adminKey{}).(bool)
	return v
}

type fixture struct {
	svc      *ReservationService
	store    *memStore
	receipts *memReceipts
	notifier *memNotifier
}

func newFixture(t *testing.T, total int) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(total), receipts: newMemReceipts(), notifier: &memNotifier{}}
	var (
		mu  sync.Mutex
		seq int
	)
	f.svc = NewReservationService(Options{
		Store:           f.store,
		Receipts:        f.receipts,
		IsAdmin:         isAdmin,
		Notifier:        f.notifier,
		MaxReceiptBytes: 1 << 20,
		Now:             func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("res-%03d", seq)
		},
	})
	return f
}

func pdfReceipt() *Receipt {
	body := []byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")
	return &Receipt{Filename: "transfer.pdf", MediaType: "application/pdf", Size: int64(len(body)), Body: strings.NewReader(string(body))}
}
