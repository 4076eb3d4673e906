package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fieldsight/core-service/internal/domain"
)

// TokenKind distinguishes short-lived API tokens from the longer-lived
// tokens used solely to mint new access tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// ErrInvalidToken is returned for any token that fails verification:
// bad signature, malformed payload, or expired.
var ErrInvalidToken = errors.New("invalid token")

// TokenManager issues and verifies signed, time-bound identity tokens.
// The signing key is immutable after construction and safe for
// unsynchronized concurrent reads.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager builds a new manager. TTLs are taken as given: a zero
// or negative TTL issues tokens that are already expired by the time they
// can be verified. Defaulting happens in config, not here.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Claims describes the JWT payload. Access tokens carry email and role;
// refresh tokens carry identity only, to minimize staleness risk.
type Claims struct {
	TenantID string      `json:"tenantId"`
	Email    string      `json:"email,omitempty"`
	Role     domain.Role `json:"role,omitempty"`
	Kind     TokenKind   `json:"kind"`
	jwt.RegisteredClaims
}

// UserID returns the token subject as a UUID.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Tenant returns the tenantId claim as a UUID.
func (c *Claims) Tenant() (uuid.UUID, error) {
	return uuid.Parse(c.TenantID)
}

// GenerateAccessToken signs a short-lived token carrying the user's full
// identity claims.
func (tm *TokenManager) GenerateAccessToken(userID, tenantID uuid.UUID, email string, role domain.Role) (string, time.Time, error) {
	return tm.generate(&Claims{
		TenantID: tenantID.String(),
		Email:    email,
		Role:     role,
		Kind:     TokenKindAccess,
	}, userID, tm.accessTTL)
}

// GenerateRefreshToken signs a longer-lived token carrying identity only.
func (tm *TokenManager) GenerateRefreshToken(userID, tenantID uuid.UUID) (string, time.Time, error) {
	return tm.generate(&Claims{
		TenantID: tenantID.String(),
		Kind:     TokenKindRefresh,
	}, userID, tm.refreshTTL)
}

func (tm *TokenManager) generate(claims *Claims, userID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken verifies signature and expiry and returns the claims.
// Malformed input is a normal, expected case on this boundary and
// yields ErrInvalidToken rather than a panic.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccessTokenTTL reports the configured access-token lifetime.
func (tm *TokenManager) AccessTokenTTL() time.Duration {
	return tm.accessTTL
}
