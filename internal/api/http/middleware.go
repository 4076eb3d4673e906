package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldsight/core-service/internal/observability"
	apperrors "github.com/fieldsight/core-service/pkg/util/errorutil"
)

const requestIDKey = "request_id"

func requestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(requestIDKey, requestID)
		c.Set(fiber.HeaderXRequestID, requestID)
		return c.Next()
	}
}

// RequestIDFromContext returns the id assigned to the in-flight request.
func RequestIDFromContext(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// toDomainError maps framework errors to their own status before the
// generic internal fallback. Unknown routes and method mismatches surface
// from fiber as *fiber.Error and must keep their 404/405 codes.
func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return apperrors.NewDomainError("http", http.StatusText(fiberErr.Code), fiberErr.Message, fiberErr.Code)
	}
	return apperrors.ToDomainError(err)
}

// errorHandlingMiddleware converts DomainErrors into RFC 7807 problem
// documents and recovers panics into generic internal failures. Rate-limit
// denials additionally carry a Retry-After header.
func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternal(nil)
			}
			if err != nil {
				domainErr := toDomainError(err)
				if metrics != nil {
					metrics.RecordError(c.Path(), c.Method(), domainErr.Code)
				}
				if domainErr.HTTPStatus >= 500 {
					logger.Error("request failed", zap.Error(domainErr), zap.String("request_id", RequestIDFromContext(c)))
				}

				problem := fiber.Map{
					"type":   domainErr.Type(),
					"title":  domainErr.Title,
					"status": domainErr.HTTPStatus,
					"detail": domainErr.Detail,
				}
				if domainErr.RetryAfterSeconds > 0 {
					problem["retryAfterSeconds"] = domainErr.RetryAfterSeconds
					c.Set(fiber.HeaderRetryAfter, strconv.Itoa(domainErr.RetryAfterSeconds))
				}

				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(problem)
				// c.JSON resets the content type, so this must come after.
				c.Set(fiber.HeaderContentType, "application/problem+json")
				err = nil
			}
		}()
		return c.Next()
	}
}
