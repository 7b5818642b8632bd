package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrNoProviderAvailable = errors.New("no active provider available")
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// FirstActiveProvider returns the active provider with the lowest
	// identifier, or ErrNoProviderAvailable.
	FirstActiveProvider(ctx context.Context) (*Account, error)
}

// Assigner picks the provider for a freshly admitted booking. The
// selection policy is deliberately narrow so it can be swapped without
// touching the admission path.
type Assigner interface {
	Assign(ctx context.Context) (uuid.UUID, error)
}

// FirstAvailableAssigner implements the current policy: the lowest-id
// active provider takes every new booking. No load balancing; staff can
// reassign afterwards.
type FirstAvailableAssigner struct {
	repo Repository
}

func NewFirstAvailableAssigner(repo Repository) *FirstAvailableAssigner {
	return &FirstAvailableAssigner{repo: repo}
}

func (a *FirstAvailableAssigner) Assign(ctx context.Context) (uuid.UUID, error) {
	p, err := a.repo.FirstActiveProvider(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}
