package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldsight/core-service/internal/api/dto"
	"github.com/fieldsight/core-service/internal/service"
	apperrors "github.com/fieldsight/core-service/pkg/util/errorutil"
)

// AuthHandler exposes the unauthenticated auth endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidation("invalid payload")
	}
	if req.CompanyName == "" || req.Email == "" || req.Password == "" {
		return apperrors.NewValidation("companyName, email and password are required")
	}

	result, err := h.auth.Register(c.UserContext(), req.CompanyName, req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(result)
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidation("invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidation("email and password are required")
	}

	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidation("invalid payload")
	}
	if req.RefreshToken == "" {
		return apperrors.NewValidation("refreshToken is required")
	}

	result, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(result)
}
