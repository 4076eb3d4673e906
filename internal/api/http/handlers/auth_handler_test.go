package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldsight/core-service/internal/auth"
	"github.com/fieldsight/core-service/internal/domain"
	"github.com/fieldsight/core-service/internal/repository"
	"github.com/fieldsight/core-service/internal/service"
)

// deadlineStore records whether the context reaching the store carried a
// deadline.
type deadlineStore struct {
	sawDeadline bool
}

func (s *deadlineStore) FindUserByEmail(ctx context.Context, _ string) (*domain.User, error) {
	_, s.sawDeadline = ctx.Deadline()
	return nil, repository.ErrNotFound
}

func (s *deadlineStore) FindUserByID(ctx context.Context, _ uuid.UUID) (*domain.User, error) {
	_, s.sawDeadline = ctx.Deadline()
	return nil, repository.ErrNotFound
}

func (s *deadlineStore) ExistsTenantSlug(context.Context, string) (bool, error) { return false, nil }
func (s *deadlineStore) SaveUser(context.Context, *domain.User) error           { return nil }
func (s *deadlineStore) SaveTenant(context.Context, *domain.Tenant) error       { return nil }
func (s *deadlineStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	return fn(s)
}

func TestLoginPropagatesRequestDeadlineToStore(t *testing.T) {
	store := &deadlineStore{}
	tokens := auth.NewTokenManager("handler-test-secret", time.Hour, 24*time.Hour)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	svc := service.NewAuthService(store, tokens, hasher, nil, zap.NewNop())
	handler := NewAuthHandler(svc)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	})
	app.Post("/api/v1/auth/login", handler.Login)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"a@x.com","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	_, err := app.Test(req)
	require.NoError(t, err)

	assert.True(t, store.sawDeadline,
		"the store must see the deadline set on the request's user context")
}
