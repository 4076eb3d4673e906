package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldsight/core-service/internal/auth"
	"github.com/fieldsight/core-service/internal/domain"
	"github.com/fieldsight/core-service/internal/repository"
	apperrors "github.com/fieldsight/core-service/pkg/util/errorutil"
)

// fakeStore is an in-memory Store with transactional semantics: changes
// made inside InTx are visible only after the callback succeeds.
type fakeStore struct {
	users   map[uuid.UUID]*domain.User
	tenants map[uuid.UUID]*domain.Tenant
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[uuid.UUID]*domain.User),
		tenants: make(map[uuid.UUID]*domain.Tenant),
	}
}

func (s *fakeStore) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeStore) FindUserByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *fakeStore) ExistsTenantSlug(_ context.Context, slug string) (bool, error) {
	for _, t := range s.tenants {
		if t.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) SaveUser(_ context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *fakeStore) SaveTenant(_ context.Context, tenant *domain.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	copied := *tenant
	s.tenants[tenant.ID] = &copied
	return nil
}

func (s *fakeStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	scratch := &fakeStore{
		users:   make(map[uuid.UUID]*domain.User, len(s.users)),
		tenants: make(map[uuid.UUID]*domain.Tenant, len(s.tenants)),
	}
	for id, u := range s.users {
		copied := *u
		scratch.users[id] = &copied
	}
	for id, t := range s.tenants {
		copied := *t
		scratch.tenants[id] = &copied
	}

	if err := fn(scratch); err != nil {
		return err
	}
	s.users = scratch.users
	s.tenants = scratch.tenants
	return nil
}

func newTestAuthService(store repository.Store) *AuthService {
	tokens := auth.NewTokenManager("service-test-secret", time.Hour, 24*time.Hour)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	return NewAuthService(store, tokens, hasher, nil, zap.NewNop())
}

func TestRegisterCreatesTenantAndAdmin(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	result, err := svc.Register(ctx, "Acme HVAC", "a@x.com", "pw", "A", "B")
	require.NoError(t, err)

	assert.Equal(t, domain.RoleAdmin, result.Role)
	assert.Equal(t, "a@x.com", result.Email)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, int64(3600), result.ExpiresInSeconds)

	tenant := store.tenants[result.TenantID]
	require.NotNil(t, tenant)
	assert.Contains(t, tenant.Slug, "acme-hvac")
	assert.Equal(t, domain.PlanFree, tenant.SubscriptionPlan)
	assert.True(t, tenant.Active)

	user := store.users[result.UserID]
	require.NotNil(t, user)
	assert.Equal(t, tenant.ID, user.TenantID)
	assert.True(t, user.Active)
	assert.NotEqual(t, "pw", user.PasswordHash)
}

func TestRegisterDisambiguatesSlugCollision(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	first, err := svc.Register(ctx, "Acme HVAC", "one@x.com", "pw", "A", "B")
	require.NoError(t, err)
	second, err := svc.Register(ctx, "Acme HVAC", "two@x.com", "pw", "C", "D")
	require.NoError(t, err)

	slugOne := store.tenants[first.TenantID].Slug
	slugTwo := store.tenants[second.TenantID].Slug
	assert.Equal(t, "acme-hvac", slugOne)
	assert.NotEqual(t, slugOne, slugTwo)
	assert.True(t, strings.HasPrefix(slugTwo, "acme-hvac-"))
	assert.Len(t, slugTwo, len("acme-hvac-")+8)
}

func TestRegisterDuplicateEmailConflict(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Acme HVAC", "a@x.com", "pw", "A", "B")
	require.NoError(t, err)
	require.Len(t, store.tenants, 1)

	_, err = svc.Register(ctx, "Other Co", "a@x.com", "pw", "C", "D")
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	// The failed registration must not leave a second tenant behind.
	assert.Len(t, store.tenants, 1)
	assert.Len(t, store.users, 1)
}

func TestLoginRoundTrip(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Acme HVAC", "a@x.com", "pw", "A", "B")
	require.NoError(t, err)

	result, err := svc.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, result.Role)

	_, err = svc.Login(ctx, "a@x.com", "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
}

func TestLoginDoesNotRevealWhichFactorFailed(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Acme HVAC", "a@x.com", "pw", "A", "B")
	require.NoError(t, err)

	_, unknownEmailErr := svc.Login(ctx, "nobody@x.com", "pw")
	_, wrongPasswordErr := svc.Login(ctx, "a@x.com", "wrong")

	require.Error(t, unknownEmailErr)
	require.Error(t, wrongPasswordErr)
	assert.Equal(t, unknownEmailErr.Error(), wrongPasswordErr.Error())
}

func TestRefreshAcceptsOnlyRefreshTokens(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Acme HVAC", "a@x.com", "pw", "A", "B")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, registered.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, registered.UserID, refreshed.UserID)
	assert.Equal(t, registered.TenantID, refreshed.TenantID)

	_, err = svc.Refresh(ctx, registered.AccessToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
	assert.Contains(t, err.Error(), "not a refresh token")

	_, err = svc.Refresh(ctx, "garbage")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
}

func TestRefreshRederivesClaimsFromLiveRecord(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Acme HVAC", "a@x.com", "pw", "A", "B")
	require.NoError(t, err)

	// Demote the user after the refresh token was issued.
	store.users[registered.UserID].Role = domain.RoleTechnician

	refreshed, err := svc.Refresh(ctx, registered.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTechnician, refreshed.Role)
}

func TestRefreshRejectsTenantMismatch(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Acme HVAC", "a@x.com", "pw", "A", "B")
	require.NoError(t, err)

	// Reassigning the user to another tenant invalidates the old token.
	store.users[registered.UserID].TenantID = uuid.New()

	_, err = svc.Refresh(ctx, registered.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
	assert.Contains(t, err.Error(), "tenant mismatch")
}

func TestDeactivatedAccountFailsLoginAndRefresh(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Acme HVAC", "a@x.com", "pw", "A", "B")
	require.NoError(t, err)

	store.users[registered.UserID].Active = false

	_, err = svc.Login(ctx, "a@x.com", "pw")
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))

	_, err = svc.Refresh(ctx, registered.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
}

func TestRefreshRejectsDeletedUser(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(store)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "Acme HVAC", "a@x.com", "pw", "A", "B")
	require.NoError(t, err)

	delete(store.users, registered.UserID)

	_, err = svc.Refresh(ctx, registered.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
}
