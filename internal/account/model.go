package account

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient  Role = "patient"
	RoleStaff    Role = "staff"
	RoleProvider Role = "provider"
)

type Account struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Role      Role
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAssignableProvider reports whether the account may be attached to a
// booking as its provider.
func (a *Account) IsAssignableProvider() bool {
	return a.Role == RoleProvider && a.Active
}
