package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is an append-only audit record. ActorID is nil for anonymous or
// failed attempts.
type Event struct {
	ActorID   *uuid.UUID
	Action    string
	BookingID *uuid.UUID
	Metadata  map[string]any
	CreatedAt time.Time
}

// Recorder appends audit events. Implementations must never update or
// delete; callers treat recording as best-effort.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

type PgRecorder struct {
	pool *pgxpool.Pool
}

func NewPgRecorder(pool *pgxpool.Pool) *PgRecorder {
	return &PgRecorder{pool: pool}
}

func (r *PgRecorder) Record(ctx context.Context, ev Event) error {
	var metadata []byte
	if ev.Metadata != nil {
		data, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = data
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_events (actor_id, action, booking_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.ActorID, ev.Action, ev.BookingID, metadata, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
