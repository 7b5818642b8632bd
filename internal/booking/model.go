package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/opticlinic/booking-engine/internal/schedule"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// allowedTransitions is the single source of truth for the lifecycle.
// Terminal states have no outgoing edges. no_show is reachable from
// pending as well as confirmed: a patient who never confirmed can still
// fail to appear.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusNoShow:    {},
}

func ValidStatus(s Status) bool {
	_, ok := allowedTransitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return len(allowedTransitions[s]) == 0 && ValidStatus(s)
}

// CanTransition reports whether the lifecycle permits from → to.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Origin string

const (
	OriginWeb   Origin = "web"
	OriginStaff Origin = "staff"
)

type Booking struct {
	ID           uuid.UUID
	VisitDate    time.Time
	BlockTag     schedule.BlockTag
	StartsAt     time.Time
	EndsAt       time.Time
	Status       Status
	RequesterID  uuid.UUID
	ProviderID   uuid.UUID
	PatientID    *uuid.UUID
	Reason       *string
	CancelReason *string
	Origin       Origin
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Live reports whether the booking still occupies its slot.
func (b *Booking) Live() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

// PrescriptionAllowed reports whether prescription issuance has been
// unlocked for this visit. Only a completed visit unlocks it.
func (b *Booking) PrescriptionAllowed() bool {
	return b.Status == StatusCompleted
}

// SlotAvailability annotates one policy block with its occupancy.
type SlotAvailability struct {
	Block     schedule.Block
	Available bool
}
