package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported security event identifiers.
type EventType string

const (
	EventTenantRegistered  EventType = "tenant_registered"
	EventLoginSucceeded    EventType = "login_succeeded"
	EventLoginFailed       EventType = "login_failed"
	EventTokenRefreshed    EventType = "token_refreshed"
	EventRefreshRejected   EventType = "refresh_rejected"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
)

// Event represents a security event emitted by the auth workflow or the
// request pipeline.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TenantID  *uuid.UUID  `json:"tenant_id,omitempty"`
	UserID    *uuid.UUID  `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// New builds an event with a fresh id and timestamp.
func New(eventType EventType, tenantID, userID *uuid.UUID, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TenantID:  tenantID,
		UserID:    userID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// TenantRegisteredPayload payload.
type TenantRegisteredPayload struct {
	Slug string `json:"slug"`
}

// LoginFailedPayload payload. Email is the attempted identity, not a
// confirmed account.
type LoginFailedPayload struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// RateLimitExceededPayload payload.
type RateLimitExceededPayload struct {
	Guard string `json:"guard"`
	Key   string `json:"key"`
	Path  string `json:"path"`
}
