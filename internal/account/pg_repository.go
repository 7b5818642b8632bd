package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAccount(row pgx.Row, notFound error) (*Account, error) {
	var a Account
	var email *string

	err := row.Scan(
		&a.ID,
		&a.Name,
		&email,
		&a.Role,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}

	a.Email = email
	return &a, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role, active, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id)
	return scanAccount(row, ErrAccountNotFound)
}

func (r *PgRepository) FirstActiveProvider(ctx context.Context) (*Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role, active, created_at, updated_at
		FROM accounts
		WHERE role = 'provider' AND active
		ORDER BY id
		LIMIT 1
	`)
	return scanAccount(row, ErrNoProviderAvailable)
}
