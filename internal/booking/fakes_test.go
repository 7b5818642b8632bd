package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opticlinic/booking-engine/internal/account"
	"github.com/opticlinic/booking-engine/internal/audit"
	"github.com/opticlinic/booking-engine/internal/notify"
	"github.com/opticlinic/booking-engine/internal/schedule"
)

// memRepo mimics the Postgres repository, including the partial unique
// index: Create fails with ErrSlotTaken while a live booking holds the
// same (date, block). Guarded by a mutex so concurrency tests are valid.
type memRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
	failWith error
}

func newMemRepo() *memRepo {
	return &memRepo{bookings: make(map[uuid.UUID]*Booking)}
}

func (r *memRepo) Create(_ context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return r.failWith
	}

	for _, existing := range r.bookings {
		if existing.Live() && existing.VisitDate.Equal(b.VisitDate) && existing.BlockTag == b.BlockTag {
			return ErrSlotTaken
		}
	}

	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	cp := *b
	r.bookings[b.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return nil, r.failWith
	}

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memRepo) CountLiveByBlock(_ context.Context, date time.Time) (map[schedule.BlockTag]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return nil, r.failWith
	}

	day := schedule.Midnight(date)
	counts := make(map[schedule.BlockTag]int)
	for _, b := range r.bookings {
		if b.Live() && b.VisitDate.Equal(day) {
			counts[b.BlockTag]++
		}
	}
	return counts, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from []Status, to Status, cancelReason *string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return nil, r.failWith
	}

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}

	matched := false
	for _, s := range from {
		if b.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrBookingNotFound
	}

	b.Status = to
	if cancelReason != nil {
		b.CancelReason = cancelReason
	}
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (r *memRepo) ListByDate(_ context.Context, date time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return nil, r.failWith
	}

	day := schedule.Midnight(date)
	var out []Booking
	for _, b := range r.bookings {
		if b.VisitDate.Equal(day) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (r *memRepo) AttachPatient(_ context.Context, id, patientID uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	pid := patientID
	b.PatientID = &pid
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (r *memRepo) ReassignProvider(_ context.Context, id, providerID uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	b.ProviderID = providerID
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (r *memRepo) FindOverdueLive(_ context.Context, before time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return nil, r.failWith
	}

	var out []Booking
	for _, b := range r.bookings {
		if b.Live() && b.EndsAt.Before(before) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memRepo) liveCount(date time.Time, tag schedule.BlockTag) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := schedule.Midnight(date)
	n := 0
	for _, b := range r.bookings {
		if b.Live() && b.VisitDate.Equal(day) && b.BlockTag == tag {
			n++
		}
	}
	return n
}

type memAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*account.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[uuid.UUID]*account.Account)}
}

func (r *memAccounts) add(a account.Account) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := a
	r.accounts[a.ID] = &cp
	return a.ID
}

func (r *memAccounts) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAccounts) FirstActiveProvider(_ context.Context) (*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *account.Account
	for _, a := range r.accounts {
		if !a.IsAssignableProvider() {
			continue
		}
		if best == nil || a.ID.String() < best.ID.String() {
			best = a
		}
	}
	if best == nil {
		return nil, account.ErrNoProviderAvailable
	}
	cp := *best
	return &cp, nil
}

// passthroughLocker runs the critical section directly; lock contention
// behavior is covered by the Redis locker itself.
type passthroughLocker struct{}

func (passthroughLocker) WithSlotLock(ctx context.Context, _ time.Time, _ schedule.BlockTag, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingNotifier struct {
	mu      sync.Mutex
	intents []notify.Intent
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, intent notify.Intent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.intents = append(n.intents, intent)
	return nil
}

func (n *recordingNotifier) byKind(kind notify.Kind) []notify.Intent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Intent
	for _, i := range n.intents {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (a *recordingAudit) Record(_ context.Context, ev audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, ev)
	return nil
}

func (a *recordingAudit) byAction(action string) []audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Event
	for _, ev := range a.events {
		if ev.Action == action {
			out = append(out, ev)
		}
	}
	return out
}
