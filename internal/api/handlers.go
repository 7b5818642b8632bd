package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opticlinic/booking-engine/internal/account"
	"github.com/opticlinic/booking-engine/internal/booking"
	"github.com/opticlinic/booking-engine/internal/schedule"
)

const dateLayout = "2006-01-02"

func slotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dateStr := r.URL.Query().Get("date")
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.Availability(r.Context(), date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := SlotQueryResponse{
			Date:   dateStr,
			Blocks: make([]SlotBlock, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Blocks = append(resp.Blocks, SlotBlock{
				Tag:       string(s.Block.Tag),
				Label:     s.Block.Label,
				Available: s.Available,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}

		b, err := svc.Admit(r.Context(), booking.AdmitRequest{
			Date:        date,
			BlockTag:    schedule.BlockTag(req.Block),
			RequesterID: requesterID,
			Reason:      req.Reason,
			Origin:      booking.Origin(req.Origin),
			Meta:        requestMeta(r),
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(b))
	}
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		b, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func listBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		list, err := svc.ListDay(r.Context(), date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]BookingResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toBookingResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func transitionHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		actor, ok := parseActor(w, r, req.ActorID, req.ActorRole)
		if !ok {
			return
		}

		b, err := svc.Transition(r.Context(), id, booking.Status(req.ToStatus), actor, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func attachPatientHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		var req AttachPatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		actor, ok := parseActor(w, r, req.ActorID, req.ActorRole)
		if !ok {
			return
		}

		b, err := svc.AttachPatient(r.Context(), id, patientID, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func reassignProviderHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		var req ReassignProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		actor, ok := parseActor(w, r, req.ActorID, req.ActorRole)
		if !ok {
			return
		}

		b, err := svc.ReassignProvider(r.Context(), id, providerID, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

// parseActor builds the caller identity from the request body. The
// identity is established by the auth layer upstream of this service;
// here it is taken at face value.
func parseActor(w http.ResponseWriter, r *http.Request, idStr, roleStr string) (booking.Actor, bool) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
		return booking.Actor{}, false
	}

	role := account.Role(roleStr)
	switch role {
	case account.RolePatient, account.RoleStaff, account.RoleProvider:
	default:
		writeError(w, http.StatusBadRequest, "invalid_actor_role", "actor_role must be patient, staff or provider")
		return booking.Actor{}, false
	}

	return booking.Actor{ID: id, Role: role, Meta: requestMeta(r)}, true
}

func requestMeta(r *http.Request) map[string]any {
	return map[string]any{
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.UserAgent(),
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	var invalid *booking.InvalidTransitionError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:         "invalid_transition",
			Details:       invalid.Error(),
			CurrentStatus: string(invalid.From),
		})
		return
	}

	switch {
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "that slot was just taken, pick another")
	case errors.Is(err, booking.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, booking.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "dependency_unavailable", "storage did not respond, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
