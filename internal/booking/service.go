package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opticlinic/booking-engine/internal/account"
	"github.com/opticlinic/booking-engine/internal/audit"
	"github.com/opticlinic/booking-engine/internal/notify"
	redisclient "github.com/opticlinic/booking-engine/internal/redis"
	"github.com/opticlinic/booking-engine/internal/schedule"
)

// Actor is the already-authenticated caller of a mutating operation.
// Authentication itself happens upstream; the engine only consumes the
// resulting identity, role and request metadata.
type Actor struct {
	ID   uuid.UUID
	Role account.Role
	Meta map[string]any // request origin address, client descriptor
}

func (a Actor) staff() bool {
	return a.Role == account.RoleStaff || a.Role == account.RoleProvider
}

type AdmitRequest struct {
	Date        time.Time
	BlockTag    schedule.BlockTag
	RequesterID uuid.UUID
	Reason      *string
	Origin      Origin
	Meta        map[string]any
}

type Deps struct {
	Repo          Repository
	Accounts      account.Repository
	Assigner      account.Assigner
	Locker        redisclient.SlotLocker
	Notifier      notify.Notifier
	Audit         audit.Recorder
	Log           *zap.Logger
	HorizonMonths int
	Now           func() time.Time
}

// Service owns every write to the bookings table. Admission and all
// lifecycle transitions go through here so the uniqueness invariant and
// the transition table are enforced in exactly one place.
type Service struct {
	repo          Repository
	accounts      account.Repository
	assigner      account.Assigner
	locker        redisclient.SlotLocker
	notifier      notify.Notifier
	audit         audit.Recorder
	log           *zap.Logger
	horizonMonths int
	now           func() time.Time
}

func NewService(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:          d.Repo,
		accounts:      d.Accounts,
		assigner:      d.Assigner,
		locker:        d.Locker,
		notifier:      d.Notifier,
		audit:         d.Audit,
		log:           d.Log,
		horizonMonths: d.HorizonMonths,
		now:           now,
	}
}

// Availability returns one entry per policy block for the date, marked
// available or occupied. A closed day yields an empty slice. Dates
// outside the booking horizon return the policy blocks all marked
// unavailable instead of erroring, so the UI can render them greyed out.
func (s *Service) Availability(ctx context.Context, date time.Time) ([]SlotAvailability, error) {
	blocks := schedule.BlocksFor(date)
	if len(blocks) == 0 {
		return []SlotAvailability{}, nil
	}

	if !schedule.WithinHorizon(date, s.now(), s.horizonMonths) {
		out := make([]SlotAvailability, len(blocks))
		for i, b := range blocks {
			out[i] = SlotAvailability{Block: b, Available: false}
		}
		return out, nil
	}

	counts, err := s.repo.CountLiveByBlock(ctx, date)
	if err != nil {
		return nil, storageErr("count live bookings", err)
	}

	out := make([]SlotAvailability, len(blocks))
	for i, b := range blocks {
		out[i] = SlotAvailability{Block: b, Available: counts[b.Tag] == 0}
	}
	return out, nil
}

// Admit creates a pending booking for the requested slot. Concurrent
// requests for the same slot are serialized by the Redis lock, but the
// correctness guarantee is the database's partial unique index: exactly
// one insert wins, every other attempt gets ErrSlotTaken.
func (s *Service) Admit(ctx context.Context, req AdmitRequest) (*Booking, error) {
	block, ok := schedule.FindBlock(req.Date, req.BlockTag)
	if !ok {
		return nil, validationErr("no %q block on %s", req.BlockTag, req.Date.Format("2006-01-02"))
	}

	if !schedule.WithinHorizon(req.Date, s.now(), s.horizonMonths) {
		return nil, validationErr("date %s is outside the booking horizon", req.Date.Format("2006-01-02"))
	}

	providerID, err := s.assigner.Assign(ctx)
	if err != nil {
		if errors.Is(err, account.ErrNoProviderAvailable) {
			return nil, validationErr("no provider available")
		}
		return nil, storageErr("assign provider", err)
	}

	origin := req.Origin
	if origin == "" {
		origin = OriginWeb
	}

	b := &Booking{
		ID:          uuid.New(),
		VisitDate:   block.Date,
		BlockTag:    block.Tag,
		StartsAt:    block.Opens,
		EndsAt:      block.Closes,
		Status:      StatusPending,
		RequesterID: req.RequesterID,
		ProviderID:  providerID,
		Reason:      req.Reason,
		Origin:      origin,
	}

	err = s.locker.WithSlotLock(ctx, block.Date, block.Tag, func(lockCtx context.Context) error {
		return s.repo.Create(lockCtx, b)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotTaken) {
			s.recordAudit(ctx, &req.RequesterID, "booking.admission_conflict", nil, mergeMeta(req.Meta, map[string]any{
				"visit_date": block.Date.Format("2006-01-02"),
				"block_tag":  string(block.Tag),
			}))
			return nil, ErrSlotTaken
		}
		return nil, storageErr("create booking", err)
	}

	s.recordAudit(ctx, &req.RequesterID, "booking.admitted", &b.ID, mergeMeta(req.Meta, map[string]any{
		"visit_date":  block.Date.Format("2006-01-02"),
		"block_tag":   string(block.Tag),
		"provider_id": providerID.String(),
		"origin":      string(origin),
	}))

	return b, nil
}

// Transition moves a booking through the lifecycle. The status write is
// a compare-and-set, so it happens exactly once even under concurrent
// calls; notification intents are at-least-once after the write lands.
// Re-applying a transition to a booking already in the target terminal
// state is a no-op success with no duplicate side effects.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status, actor Actor, reason *string) (*Booking, error) {
	if !ValidStatus(to) {
		return nil, validationErr("unknown status %q", to)
	}
	if to == StatusPending {
		return nil, validationErr("bookings cannot move back to pending")
	}

	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, storageErr("load booking", err)
	}

	if b.Status == to && to.Terminal() {
		return b, nil
	}

	if !CanTransition(b.Status, to) {
		return nil, &InvalidTransitionError{From: b.Status, To: to}
	}

	if err := s.authorizeTransition(b, to, actor); err != nil {
		return nil, err
	}

	var cancelReason *string
	if to == StatusCancelled {
		cancelReason = reason
	}

	updated, err := s.repo.UpdateStatus(ctx, id, []Status{b.Status}, to, cancelReason)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// Lost a race with a concurrent transition. Re-read and settle.
			return s.settleRace(ctx, id, to)
		}
		return nil, storageErr("update booking status", err)
	}

	s.emitTransitionEffects(ctx, updated, actor, reason)

	return updated, nil
}

// authorizeTransition enforces who may trigger each move: staff for
// confirm/complete/no-show, the requester or staff for cancellation.
func (s *Service) authorizeTransition(b *Booking, to Status, actor Actor) error {
	switch to {
	case StatusCancelled:
		if actor.staff() || actor.ID == b.RequesterID {
			return nil
		}
		return fmt.Errorf("%w: only staff or the requester may cancel", ErrForbidden)
	default:
		if actor.staff() {
			return nil
		}
		return fmt.Errorf("%w: %s requires staff privilege", ErrForbidden, to)
	}
}

func (s *Service) settleRace(ctx context.Context, id uuid.UUID, to Status) (*Booking, error) {
	fresh, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, storageErr("reload booking", err)
	}
	if fresh.Status == to && to.Terminal() {
		return fresh, nil
	}
	return nil, &InvalidTransitionError{From: fresh.Status, To: to}
}

func (s *Service) emitTransitionEffects(ctx context.Context, b *Booking, actor Actor, reason *string) {
	meta := mergeMeta(actor.Meta, map[string]any{
		"status": string(b.Status),
	})
	if reason != nil {
		meta["reason"] = *reason
	}
	actorID := actor.ID
	s.recordAudit(ctx, &actorID, "booking."+string(b.Status), &b.ID, meta)

	recipient := b.RequesterID
	if b.PatientID != nil {
		recipient = *b.PatientID
	}

	switch b.Status {
	case StatusConfirmed:
		s.emitIntent(ctx, b, notify.KindConfirmed, recipient, nil)
	case StatusCancelled:
		ctxData := map[string]any{}
		if b.CancelReason != nil {
			ctxData["reason"] = *b.CancelReason
		}
		s.emitIntent(ctx, b, notify.KindCancelled, recipient, ctxData)
	case StatusCompleted:
		s.emitIntent(ctx, b, notify.KindCompleted, recipient, map[string]any{
			"unlock_prescription": true,
		})
	case StatusNoShow:
		// Audit only, nothing to tell the patient.
	}
}

func (s *Service) emitIntent(ctx context.Context, b *Booking, kind notify.Kind, recipient uuid.UUID, ctxData map[string]any) {
	err := s.notifier.Notify(ctx, notify.Intent{
		BookingID: b.ID,
		Kind:      kind,
		Recipient: recipient,
		Context:   ctxData,
	})
	if err != nil {
		s.log.Warn("notification intent failed",
			zap.String("booking_id", b.ID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

// recordAudit is best-effort: an unavailable audit sink must never fail
// the primary operation.
func (s *Service) recordAudit(ctx context.Context, actorID *uuid.UUID, action string, bookingID *uuid.UUID, meta map[string]any) {
	err := s.audit.Record(ctx, audit.Event{
		ActorID:   actorID,
		Action:    action,
		BookingID: bookingID,
		Metadata:  meta,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

// Get returns a booking by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, storageErr("load booking", err)
	}
	return b, nil
}

// ListDay returns every booking for a visit date, for the staff console.
func (s *Service) ListDay(ctx context.Context, date time.Time) ([]Booking, error) {
	list, err := s.repo.ListByDate(ctx, date)
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	return list, nil
}

// AttachPatient links a patient record to a booking created without one.
func (s *Service) AttachPatient(ctx context.Context, id, patientID uuid.UUID, actor Actor) (*Booking, error) {
	if !actor.staff() {
		return nil, fmt.Errorf("%w: attaching a patient requires staff privilege", ErrForbidden)
	}

	patient, err := s.accounts.GetByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil, validationErr("patient %s does not exist", patientID)
		}
		return nil, storageErr("load patient", err)
	}
	if patient.Role != account.RolePatient {
		return nil, validationErr("account %s is not a patient", patientID)
	}

	b, err := s.repo.AttachPatient(ctx, id, patientID)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, storageErr("attach patient", err)
	}

	actorID := actor.ID
	s.recordAudit(ctx, &actorID, "booking.patient_attached", &b.ID, mergeMeta(actor.Meta, map[string]any{
		"patient_id": patientID.String(),
	}))

	return b, nil
}

// ReassignProvider swaps the provider on a booking, re-validating that
// the target holds the provider role and is active.
func (s *Service) ReassignProvider(ctx context.Context, id, providerID uuid.UUID, actor Actor) (*Booking, error) {
	if !actor.staff() {
		return nil, fmt.Errorf("%w: reassigning a provider requires staff privilege", ErrForbidden)
	}

	provider, err := s.accounts.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return nil, validationErr("provider %s does not exist", providerID)
		}
		return nil, storageErr("load provider", err)
	}
	if !provider.IsAssignableProvider() {
		return nil, validationErr("account %s is not an active provider", providerID)
	}

	b, err := s.repo.ReassignProvider(ctx, id, providerID)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, storageErr("reassign provider", err)
	}

	actorID := actor.ID
	s.recordAudit(ctx, &actorID, "booking.provider_reassigned", &b.ID, mergeMeta(actor.Meta, map[string]any{
		"provider_id": providerID.String(),
	}))

	return b, nil
}

// SweepNoShows marks live bookings whose visit window has passed as
// no_show. Intended to be called periodically by the sweeper worker.
func (s *Service) SweepNoShows(ctx context.Context) (int, error) {
	overdue, err := s.repo.FindOverdueLive(ctx, s.now())
	if err != nil {
		return 0, storageErr("find overdue bookings", err)
	}

	swept := 0
	for _, b := range overdue {
		_, err := s.repo.UpdateStatus(ctx, b.ID, []Status{StatusPending, StatusConfirmed}, StatusNoShow, nil)
		if err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				continue // transitioned concurrently
			}
			s.log.Warn("no-show sweep failed for booking",
				zap.String("booking_id", b.ID.String()),
				zap.Error(err),
			)
			continue
		}

		s.recordAudit(ctx, nil, "booking.no_show", &b.ID, map[string]any{
			"swept": true,
		})
		swept++
	}

	return swept, nil
}

func mergeMeta(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
