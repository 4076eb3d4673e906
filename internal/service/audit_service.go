package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/fieldsight/core-service/internal/events"
)

// AuditService writes a structured audit line for every security event.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to every security event type.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTenantRegistered,
		events.EventLoginSucceeded,
		events.EventLoginFailed,
		events.EventTokenRefreshed,
		events.EventRefreshRejected,
		events.EventRateLimitExceeded,
	} {
		a.dispatcher.Subscribe(eventType, a.handle)
	}
}

func (a *AuditService) handle(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.TenantID != nil {
		fields = append(fields, zap.String("tenant_id", event.TenantID.String()))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.String()))
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	a.logger.Info("security event", fields...)
	return nil
}
