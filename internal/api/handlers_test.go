package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opticlinic/booking-engine/internal/account"
	"github.com/opticlinic/booking-engine/internal/audit"
	"github.com/opticlinic/booking-engine/internal/booking"
	"github.com/opticlinic/booking-engine/internal/notify"
	"github.com/opticlinic/booking-engine/internal/schedule"
)

// Tuesday.
var testNow = time.Date(2026, time.September, 1, 8, 0, 0, 0, time.UTC)

type stubRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*booking.Booking
}

func newStubRepo() *stubRepo {
	return &stubRepo{bookings: make(map[uuid.UUID]*booking.Booking)}
}

func (r *stubRepo) Create(_ context.Context, b *booking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.bookings {
		if existing.Live() && existing.VisitDate.Equal(b.VisitDate) && existing.BlockTag == b.BlockTag {
			return booking.ErrSlotTaken
		}
	}
	cp := *b
	r.bookings[b.ID] = &cp
	return nil
}

func (r *stubRepo) GetByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *stubRepo) CountLiveByBlock(_ context.Context, date time.Time) (map[schedule.BlockTag]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := schedule.Midnight(date)
	counts := make(map[schedule.BlockTag]int)
	for _, b := range r.bookings {
		if b.Live() && b.VisitDate.Equal(day) {
			counts[b.BlockTag]++
		}
	}
	return counts, nil
}

func (r *stubRepo) UpdateStatus(_ context.Context, id uuid.UUID, from []booking.Status, to booking.Status, cancelReason *string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	matched := false
	for _, s := range from {
		if b.Status == s {
			matched = true
		}
	}
	if !matched {
		return nil, booking.ErrBookingNotFound
	}
	b.Status = to
	if cancelReason != nil {
		b.CancelReason = cancelReason
	}
	cp := *b
	return &cp, nil
}

func (r *stubRepo) ListByDate(_ context.Context, date time.Time) ([]booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := schedule.Midnight(date)
	var out []booking.Booking
	for _, b := range r.bookings {
		if b.VisitDate.Equal(day) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *stubRepo) AttachPatient(_ context.Context, id, patientID uuid.UUID) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	b.PatientID = &patientID
	cp := *b
	return &cp, nil
}

func (r *stubRepo) ReassignProvider(_ context.Context, id, providerID uuid.UUID) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	b.ProviderID = providerID
	cp := *b
	return &cp, nil
}

func (r *stubRepo) FindOverdueLive(context.Context, time.Time) ([]booking.Booking, error) {
	return nil, nil
}

type stubAccounts struct {
	provider account.Account
}

func (s *stubAccounts) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	if id == s.provider.ID {
		cp := s.provider
		return &cp, nil
	}
	return nil, account.ErrAccountNotFound
}

func (s *stubAccounts) FirstActiveProvider(context.Context) (*account.Account, error) {
	cp := s.provider
	return &cp, nil
}

type noopLocker struct{}

func (noopLocker) WithSlotLock(ctx context.Context, _ time.Time, _ schedule.BlockTag, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, notify.Intent) error { return nil }

type noopAudit struct{}

func (noopAudit) Record(context.Context, audit.Event) error { return nil }

func newTestRouter(t *testing.T) (http.Handler, *stubRepo) {
	t.Helper()

	repo := newStubRepo()
	accounts := &stubAccounts{provider: account.Account{
		ID:     uuid.New(),
		Name:   "Dr. Vega",
		Role:   account.RoleProvider,
		Active: true,
	}}

	svc := booking.NewService(booking.Deps{
		Repo:          repo,
		Accounts:      accounts,
		Assigner:      account.NewFirstAvailableAssigner(accounts),
		Locker:        noopLocker{},
		Notifier:      noopNotifier{},
		Audit:         noopAudit{},
		Log:           zap.NewNop(),
		HorizonMonths: 2,
		Now:           func() time.Time { return testNow },
	})

	router := NewRouter(RouterConfig{
		Service: svc,
		Log:     zap.NewNop(),
		Env:     "test",
		Version: "test",
	})

	return router, repo
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSlotsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/slots?date=2026-09-08", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SlotQueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Blocks, 2)
	assert.Equal(t, "AM", resp.Blocks[0].Tag)
	assert.Equal(t, "PM", resp.Blocks[1].Tag)
	assert.True(t, resp.Blocks[0].Available)
}

func TestSlotsEndpoint_SundayEmptyNotError(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/slots?date=2026-09-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SlotQueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Blocks)
	assert.Empty(t, resp.Blocks)
}

func TestSlotsEndpoint_BadDate(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/slots?date=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBooking(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/bookings", CreateBookingRequest{
		Date:        "2026-09-08",
		Block:       "AM",
		RequesterID: uuid.NewString(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "AM", resp.Block)
	assert.False(t, resp.PrescriptionAllowed)
}

func TestCreateBooking_Conflict(t *testing.T) {
	router, _ := newTestRouter(t)

	first := doJSON(t, router, http.MethodPost, "/bookings", CreateBookingRequest{
		Date: "2026-09-08", Block: "AM", RequesterID: uuid.NewString(),
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := doJSON(t, router, http.MethodPost, "/bookings", CreateBookingRequest{
		Date: "2026-09-08", Block: "AM", RequesterID: uuid.NewString(),
	})
	require.Equal(t, http.StatusConflict, second.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, "slot_taken", resp.Error)
}

func TestCreateBooking_Validation(t *testing.T) {
	router, _ := newTestRouter(t)

	// Unknown block tag.
	rec := doJSON(t, router, http.MethodPost, "/bookings", CreateBookingRequest{
		Date: "2026-09-08", Block: "NIGHT", RequesterID: uuid.NewString(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Past date.
	rec = doJSON(t, router, http.MethodPost, "/bookings", CreateBookingRequest{
		Date: "2026-08-01", Block: "AM", RequesterID: uuid.NewString(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Bad requester id.
	rec = doJSON(t, router, http.MethodPost, "/bookings", CreateBookingRequest{
		Date: "2026-09-08", Block: "AM", RequesterID: "not-a-uuid",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/bookings", CreateBookingRequest{
		Date: "2026-09-08", Block: "AM", RequesterID: uuid.NewString(),
	})
	require.Equal(t, http.StatusCreated, created.Code)

	var b BookingResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &b))

	staffID := uuid.NewString()

	rec := doJSON(t, router, http.MethodPost, "/bookings/"+b.ID.String()+"/status", TransitionRequest{
		ToStatus: "confirmed", ActorID: staffID, ActorRole: "staff",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var confirmed BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	assert.Equal(t, "confirmed", confirmed.Status)

	rec = doJSON(t, router, http.MethodPost, "/bookings/"+b.ID.String()+"/status", TransitionRequest{
		ToStatus: "completed", ActorID: staffID, ActorRole: "staff",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var completed BookingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &completed))
	assert.Equal(t, "completed", completed.Status)
	assert.True(t, completed.PrescriptionAllowed)
}

func TestTransitionEndpoint_InvalidTransitionReportsState(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/bookings", CreateBookingRequest{
		Date: "2026-09-08", Block: "AM", RequesterID: uuid.NewString(),
	})
	var b BookingResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &b))

	staffID := uuid.NewString()

	rec := doJSON(t, router, http.MethodPost, "/bookings/"+b.ID.String()+"/status", TransitionRequest{
		ToStatus: "cancelled", ActorID: staffID, ActorRole: "staff",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/bookings/"+b.ID.String()+"/status", TransitionRequest{
		ToStatus: "confirmed", ActorID: staffID, ActorRole: "staff",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_transition", resp.Error)
	assert.Equal(t, "cancelled", resp.CurrentStatus)
}

func TestTransitionEndpoint_Forbidden(t *testing.T) {
	router, _ := newTestRouter(t)

	created := doJSON(t, router, http.MethodPost, "/bookings", CreateBookingRequest{
		Date: "2026-09-08", Block: "AM", RequesterID: uuid.NewString(),
	})
	var b BookingResponse
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &b))

	rec := doJSON(t, router, http.MethodPost, "/bookings/"+b.ID.String()+"/status", TransitionRequest{
		ToStatus: "confirmed", ActorID: uuid.NewString(), ActorRole: "patient",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetBooking_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/bookings/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
