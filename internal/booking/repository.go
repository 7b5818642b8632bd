package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opticlinic/booking-engine/internal/schedule"
)

// Repository contains all booking table access needed by the service.
// The service is the only writer; no other component touches the table.
type Repository interface {
	// Create inserts a new pending booking. Returns ErrSlotTaken when the
	// slot already holds a live booking (enforced by the store, not by a
	// prior read).
	Create(ctx context.Context, b *Booking) error

	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// CountLiveByBlock returns, for the given visit date, how many live
	// (pending or confirmed) bookings each block tag holds.
	CountLiveByBlock(ctx context.Context, date time.Time) (map[schedule.BlockTag]int, error)

	// UpdateStatus is a compare-and-set: the row is updated only while
	// its status is one of from. Returns ErrBookingNotFound when no row
	// matched, which callers must treat as a lost race, not a missing row.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, cancelReason *string) (*Booking, error)

	ListByDate(ctx context.Context, date time.Time) ([]Booking, error)

	AttachPatient(ctx context.Context, id, patientID uuid.UUID) (*Booking, error)
	ReassignProvider(ctx context.Context, id, providerID uuid.UUID) (*Booking, error)

	// FindOverdueLive returns live bookings whose visit day ended before
	// the given instant. Used by the no-show sweeper.
	FindOverdueLive(ctx context.Context, before time.Time) ([]Booking, error)
}
