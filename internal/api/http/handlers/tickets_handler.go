package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	tickets  *service.TicketService
	comments *service.CommentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, comments *service.CommentService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, comments: comments}
}

// Create POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Title == "" || req.PriorityID == "" {
		return apperrors.NewValidationError("title and priority_id required", nil)
	}

	input := service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		PriorityID:  req.PriorityID,
		AssigneeID:  req.AssigneeID,
	}
	if req.SLAOverrideSeconds != nil {
		override := time.Duration(*req.SLAOverrideSeconds) * time.Second
		input.SLAOverride = &override
	}
	ticket, err := h.tickets.Create(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// List GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	tickets, err := h.tickets.ListByAccount(c.UserContext(), actor, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.tickets.GetForParticipant(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	threads, err := h.comments.ListThreads(c.UserContext(), actor, ticket.ID)
	if err != nil {
		return err
	}
	history, err := h.tickets.ListHistory(c.UserContext(), actor, ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, threads, history)})
}

// Update PATCH /tickets/:id.
func (h *TicketsHandler) Update(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.TicketUpdateInput{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		PriorityID:    req.PriorityID,
		AssigneeID:    req.AssigneeID,
		ClearAssignee: req.ClearAssignee,
		Deadline:      req.Deadline,
	}
	if req.Status != nil {
		status := domain.TicketStatus(*req.Status)
		input.Status = &status
	}
	ticket, err := h.tickets.Update(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AgentID == "" {
		return apperrors.NewValidationError("agent_id required", nil)
	}
	ticket, err := h.tickets.Assign(c.UserContext(), actor, c.Params("id"), req.AgentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	history, err := h.tickets.ListHistory(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(history)})
}

// ListPriorities GET /priorities.
func (h *TicketsHandler) ListPriorities(c *fiber.Ctx) error {
	priorities, err := h.tickets.ListPriorities(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.PriorityResponse, 0, len(priorities))
	for _, priority := range priorities {
		items = append(items, dto.PriorityResponse{
			ID:         priority.ID,
			Label:      priority.Label,
			SLASeconds: int64(priority.Duration.Seconds()),
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:            ticket.ID,
		Title:         ticket.Title,
		Category:      ticket.Category,
		Status:        ticket.Status,
		PriorityID:    ticket.PriorityID,
		CreatorID:     ticket.CreatorID,
		AssigneeID:    ticket.AssigneeID,
		StartTime:     ticket.StartTime,
		Deadline:      ticket.Deadline,
		CreatedAt:     ticket.CreatedAt,
		LastChangedAt: ticket.LastChangedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, threads []domain.CommentThread, history []domain.TicketHistory) dto.TicketDetailResponse {
	threadsResp := make([]dto.ThreadResponse, 0, len(threads))
	for _, thread := range threads {
		messages := make([]dto.MessageResponse, 0, len(thread.Messages))
		for _, message := range thread.Messages {
			messages = append(messages, dto.MessageResponse{
				ID:          message.ID,
				ThreadGroup: message.ThreadGroup,
				Body:        message.Body,
				AuthorID:    message.AuthorID,
				CreatedAt:   message.CreatedAt,
			})
		}
		threadsResp = append(threadsResp, dto.ThreadResponse{
			CommentID: thread.Comment.ID,
			CreatedAt: thread.Comment.CreatedAt,
			Messages:  messages,
		})
	}
	return dto.TicketDetailResponse{
		TicketSummary:     ticketSummary(ticket),
		Description:       ticket.Description,
		Version:           ticket.Version,
		TransitionOptions: service.TransitionOptions(ticket.Status),
		Threads:           threadsResp,
		History:           historyResponses(history),
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:        entry.ID,
			ActorType: entry.ActorType,
			ActorID:   entry.ActorID,
			Changes:   entry.Changes,
			CreatedAt: entry.CreatedAt,
		})
	}
	return resp
}
