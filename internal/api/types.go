package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/opticlinic/booking-engine/internal/booking"
)

type SlotBlock struct {
	Tag       string `json:"tag"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

type SlotQueryResponse struct {
	Date   string      `json:"date"`
	Blocks []SlotBlock `json:"blocks"`
}

type CreateBookingRequest struct {
	Date        string  `json:"date"`
	Block       string  `json:"block"`
	RequesterID string  `json:"requester_id"`
	Reason      *string `json:"reason,omitempty"`
	Origin      string  `json:"origin,omitempty"`
}

type TransitionRequest struct {
	ToStatus  string  `json:"to_status"`
	ActorID   string  `json:"actor_id"`
	ActorRole string  `json:"actor_role"`
	Reason    *string `json:"reason,omitempty"`
}

type AttachPatientRequest struct {
	PatientID string `json:"patient_id"`
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`
}

type ReassignProviderRequest struct {
	ProviderID string `json:"provider_id"`
	ActorID    string `json:"actor_id"`
	ActorRole  string `json:"actor_role"`
}

type BookingResponse struct {
	ID                  uuid.UUID  `json:"id"`
	VisitDate           string     `json:"visit_date"`
	Block               string     `json:"block"`
	StartsAt            time.Time  `json:"starts_at"`
	EndsAt              time.Time  `json:"ends_at"`
	Status              string     `json:"status"`
	RequesterID         uuid.UUID  `json:"requester_id"`
	ProviderID          uuid.UUID  `json:"provider_id"`
	PatientID           *uuid.UUID `json:"patient_id,omitempty"`
	Reason              *string    `json:"reason,omitempty"`
	CancelReason        *string    `json:"cancel_reason,omitempty"`
	Origin              string     `json:"origin"`
	PrescriptionAllowed bool       `json:"prescription_allowed"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:                  b.ID,
		VisitDate:           b.VisitDate.Format("2006-01-02"),
		Block:               string(b.BlockTag),
		StartsAt:            b.StartsAt,
		EndsAt:              b.EndsAt,
		Status:              string(b.Status),
		RequesterID:         b.RequesterID,
		ProviderID:          b.ProviderID,
		PatientID:           b.PatientID,
		Reason:              b.Reason,
		CancelReason:        b.CancelReason,
		Origin:              string(b.Origin),
		PrescriptionAllowed: b.PrescriptionAllowed(),
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

type ErrorResponse struct {
	Error         string `json:"error"`
	Details       string `json:"details,omitempty"`
	CurrentStatus string `json:"current_status,omitempty"`
}
