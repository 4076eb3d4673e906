package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fieldsight/core-service/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store is the user/tenant persistence collaborator of the auth workflow.
// Implementations must make InTx atomic: either every save inside the
// callback persists, or none do.
type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	ExistsTenantSlug(ctx context.Context, slug string) (bool, error)
	SaveUser(ctx context.Context, user *domain.User) error
	SaveTenant(ctx context.Context, tenant *domain.Tenant) error

	// InTx runs fn against a transaction-scoped view of the store and
	// commits when fn returns nil, rolling back otherwise.
	InTx(ctx context.Context, fn func(Store) error) error
}
