package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldsight/core-service/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting the same
// query code run inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresStore struct {
	q    querier
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{q: pool, pool: pool}
}

func (s *postgresStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
        SELECT id, tenant_id, email, password_hash, first_name, last_name, role, active, created_at, updated_at
        FROM users WHERE email=$1`
	return s.scanUser(s.q.QueryRow(ctx, query, email))
}

func (s *postgresStore) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const query = `
        SELECT id, tenant_id, email, password_hash, first_name, last_name, role, active, created_at, updated_at
        FROM users WHERE id=$1`
	return s.scanUser(s.q.QueryRow(ctx, query, id))
}

func (s *postgresStore) scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *postgresStore) ExistsTenantSlug(ctx context.Context, slug string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM tenants WHERE slug=$1)`
	var exists bool
	if err := s.q.QueryRow(ctx, query, slug).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *postgresStore) SaveUser(ctx context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	const query = `
        INSERT INTO users (id, tenant_id, email, password_hash, first_name, last_name, role, active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            tenant_id=EXCLUDED.tenant_id,
            email=EXCLUDED.email,
            password_hash=EXCLUDED.password_hash,
            first_name=EXCLUDED.first_name,
            last_name=EXCLUDED.last_name,
            role=EXCLUDED.role,
            active=EXCLUDED.active,
            updated_at=NOW()
        RETURNING created_at, updated_at`

	return s.q.QueryRow(ctx, query,
		user.ID,
		user.TenantID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Active,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
}

func (s *postgresStore) SaveTenant(ctx context.Context, tenant *domain.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	const query = `
        INSERT INTO tenants (id, name, slug, subscription_plan, active)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
            name=EXCLUDED.name,
            slug=EXCLUDED.slug,
            subscription_plan=EXCLUDED.subscription_plan,
            active=EXCLUDED.active,
            updated_at=NOW()
        RETURNING created_at, updated_at`

	return s.q.QueryRow(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.SubscriptionPlan,
		tenant.Active,
	).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
}

// InTx executes fn against a transaction-bound store. Nested calls reuse
// the surrounding transaction.
func (s *postgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// Already transaction-scoped.
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&postgresStore{q: tx})
	})
}
