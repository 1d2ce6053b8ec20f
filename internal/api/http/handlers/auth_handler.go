package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// AuthHandler manages signup, agent provisioning, and login.
type AuthHandler struct {
	authService   *service.AuthService
	ticketService *service.TicketService
}

// NewAuthHandler constructs handler. The ticket engine is needed for the
// unassignment cascade when an agent is deactivated.
func NewAuthHandler(authService *service.AuthService, ticketService *service.TicketService) *AuthHandler {
	return &AuthHandler{authService: authService, ticketService: ticketService}
}

// Signup POST /auth/signup.
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.authService.SignupCustomer(c.UserContext(), service.SignupInput{
		Portal:   req.Portal,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		JobTitle: req.JobTitle,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.authService.Login(c.UserContext(), service.LoginInput{
		Portal:   req.Portal,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      dto.NewUserResponse(result.User),
	}})
}

// CreateAgent POST /agents.
func (h *AuthHandler) CreateAgent(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.authService.CreateAgent(c.UserContext(), actor, service.AgentInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		JobTitle: req.JobTitle,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewUserResponse(agent)})
}

// DeactivateAgent POST /agents/:id/deactivate.
func (h *AuthHandler) DeactivateAgent(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.ticketService.DeactivateAgent(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deactivated": true}})
}
