package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldsight/core-service/internal/auth"
	"github.com/fieldsight/core-service/internal/domain"
	"github.com/fieldsight/core-service/internal/events"
	"github.com/fieldsight/core-service/internal/repository"
	apperrors "github.com/fieldsight/core-service/pkg/util/errorutil"
)

// AuthResult is the uniform response of register, login and refresh.
type AuthResult struct {
	AccessToken      string      `json:"accessToken"`
	RefreshToken     string      `json:"refreshToken"`
	ExpiresInSeconds int64       `json:"expiresIn"`
	UserID           uuid.UUID   `json:"userId"`
	Email            string      `json:"email"`
	Role             domain.Role `json:"role"`
	TenantID         uuid.UUID   `json:"tenantId"`
}

// AuthService orchestrates registration, login and token refresh against
// the external user/tenant store.
type AuthService struct {
	store      repository.Store
	tokens     *auth.TokenManager
	hasher     auth.PasswordHasher
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuthService builds the service. The dispatcher may be nil when no
// audit subscriber is wired.
func NewAuthService(store repository.Store, tokens *auth.TokenManager, hasher auth.PasswordHasher, dispatcher events.Dispatcher, logger *zap.Logger) *AuthService {
	return &AuthService{store: store, tokens: tokens, hasher: hasher, dispatcher: dispatcher, logger: logger}
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// Register creates a tenant and its first admin user in one transaction.
// A duplicate email anywhere in the user store is a Conflict; no tenant
// persists in that case.
func (s *AuthService) Register(ctx context.Context, companyName, email, password, firstName, lastName string) (*AuthResult, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	var user *domain.User
	var slug string
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := tx.FindUserByEmail(ctx, email); err == nil {
			return apperrors.NewConflict(fmt.Sprintf("User with email %s already exists", email))
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		slug = domain.Slugify(companyName)
		exists, err := tx.ExistsTenantSlug(ctx, slug)
		if err != nil {
			return err
		}
		if exists {
			slug = slug + "-" + uuid.NewString()[:8]
		}

		tenant := &domain.Tenant{
			Name:             companyName,
			Slug:             slug,
			SubscriptionPlan: domain.PlanFree,
			Active:           true,
		}
		if err := tx.SaveTenant(ctx, tenant); err != nil {
			return err
		}

		user = &domain.User{
			TenantID:     tenant.ID,
			Email:        email,
			PasswordHash: hash,
			FirstName:    firstName,
			LastName:     lastName,
			Role:         domain.RoleAdmin,
			Active:       true,
		}
		return tx.SaveUser(ctx, user)
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}

	s.logger.Info("tenant registered",
		zap.String("tenant_id", user.TenantID.String()),
		zap.String("user_id", user.ID.String()))
	s.publish(ctx, events.New(events.EventTenantRegistered, &user.TenantID, &user.ID,
		events.TenantRegisteredPayload{Slug: slug}))
	return s.buildAuthResult(user)
}

// Login authenticates by email and password. The error message never
// distinguishes an unknown email from a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.publish(ctx, events.New(events.EventLoginFailed, nil, nil,
				events.LoginFailedPayload{Email: email, Reason: "unknown email"}))
			return nil, apperrors.NewAuthentication("Invalid email or password")
		}
		return nil, wrapStoreError(err)
	}

	if !user.Active {
		s.publish(ctx, events.New(events.EventLoginFailed, &user.TenantID, &user.ID,
			events.LoginFailedPayload{Email: email, Reason: "account disabled"}))
		return nil, apperrors.NewAuthentication("Account is disabled")
	}

	if !s.hasher.Matches(password, user.PasswordHash) {
		s.publish(ctx, events.New(events.EventLoginFailed, &user.TenantID, &user.ID,
			events.LoginFailedPayload{Email: email, Reason: "password mismatch"}))
		return nil, apperrors.NewAuthentication("Invalid email or password")
	}

	s.publish(ctx, events.New(events.EventLoginSucceeded, &user.TenantID, &user.ID, nil))
	return s.buildAuthResult(user)
}

// Refresh strictly verifies a refresh token and mints a new token pair.
// Access-token claims are re-derived from the live user record, never from
// the token's stale claims.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.ParseToken(refreshToken)
	if err != nil {
		s.publish(ctx, events.New(events.EventRefreshRejected, nil, nil, nil))
		return nil, apperrors.NewAuthentication("Invalid or expired refresh token")
	}
	if claims.Kind != auth.TokenKindRefresh {
		s.publish(ctx, events.New(events.EventRefreshRejected, nil, nil, nil))
		return nil, apperrors.NewAuthentication("Token is not a refresh token")
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, apperrors.NewAuthentication("Invalid or expired refresh token")
	}
	tenantID, err := claims.Tenant()
	if err != nil {
		return nil, apperrors.NewAuthentication("Invalid or expired refresh token")
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewAuthentication("User not found")
		}
		return nil, wrapStoreError(err)
	}

	// Tenant reassignment invalidates outstanding refresh tokens.
	if user.TenantID != tenantID {
		return nil, apperrors.NewAuthentication("Token tenant mismatch")
	}

	if !user.Active {
		return nil, apperrors.NewAuthentication("Account is disabled")
	}

	s.publish(ctx, events.New(events.EventTokenRefreshed, &user.TenantID, &user.ID, nil))
	return s.buildAuthResult(user)
}

func (s *AuthService) buildAuthResult(user *domain.User) (*AuthResult, error) {
	accessToken, _, err := s.tokens.GenerateAccessToken(user.ID, user.TenantID, user.Email, user.Role)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	refreshToken, _, err := s.tokens.GenerateRefreshToken(user.ID, user.TenantID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	return &AuthResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresInSeconds: int64(s.tokens.AccessTokenTTL().Seconds()),
		UserID:           user.ID,
		Email:            user.Email,
		Role:             user.Role,
		TenantID:         user.TenantID,
	}, nil
}

// wrapStoreError keeps DomainErrors intact and degrades everything else
// to a generic failure.
func wrapStoreError(err error) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return apperrors.NewInternal(err)
}
