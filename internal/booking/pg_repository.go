package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opticlinic/booking-engine/internal/schedule"
)

const uniqueLiveSlotConstraint = "uniq_bookings_live_slot"

const bookingColumns = `id, visit_date, block_tag, starts_at, ends_at, status,
	requester_id, provider_id, patient_id, reason, cancel_reason, origin,
	created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking

	err := row.Scan(
		&b.ID,
		&b.VisitDate,
		&b.BlockTag,
		&b.StartsAt,
		&b.EndsAt,
		&b.Status,
		&b.RequesterID,
		&b.ProviderID,
		&b.PatientID,
		&b.Reason,
		&b.CancelReason,
		&b.Origin,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	return &b, nil
}

func (r *PgRepository) Create(ctx context.Context, b *Booking) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, visit_date, block_tag, starts_at, ends_at, status,
			requester_id, provider_id, patient_id, reason, origin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+bookingColumns+`
	`, b.ID, b.VisitDate, b.BlockTag, b.StartsAt, b.EndsAt, b.Status,
		b.RequesterID, b.ProviderID, b.PatientID, b.Reason, b.Origin)

	created, err := scanBooking(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == uniqueLiveSlotConstraint {
			return ErrSlotTaken
		}
		return err
	}

	*b = *created
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) CountLiveByBlock(ctx context.Context, date time.Time) (map[schedule.BlockTag]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT block_tag, count(*)
		FROM bookings
		WHERE visit_date = $1
		  AND status IN ('pending', 'confirmed')
		GROUP BY block_tag
	`, schedule.Midnight(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[schedule.BlockTag]int)
	for rows.Next() {
		var tag schedule.BlockTag
		var n int
		if err := rows.Scan(&tag, &n); err != nil {
			return nil, err
		}
		counts[tag] = n
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, cancelReason *string) (*Booking, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    cancel_reason = COALESCE($3, cancel_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($4)
		RETURNING `+bookingColumns+`
	`, id, to, cancelReason, fromStrs)

	return scanBooking(row)
}

func (r *PgRepository) ListByDate(ctx context.Context, date time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE visit_date = $1
		ORDER BY starts_at, created_at
	`, schedule.Midnight(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBookings(rows)
}

func (r *PgRepository) AttachPatient(ctx context.Context, id, patientID uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET patient_id = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns+`
	`, id, patientID)
	return scanBooking(row)
}

func (r *PgRepository) ReassignProvider(ctx context.Context, id, providerID uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET provider_id = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns+`
	`, id, providerID)
	return scanBooking(row)
}

func (r *PgRepository) FindOverdueLive(ctx context.Context, before time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status IN ('pending', 'confirmed')
		  AND ends_at < $1
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
