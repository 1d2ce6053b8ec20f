package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// CommentsHandler manages comment thread endpoints.
type CommentsHandler struct {
	comments *service.CommentService
}

// NewCommentsHandler constructs handler.
func NewCommentsHandler(comments *service.CommentService) *CommentsHandler {
	return &CommentsHandler{comments: comments}
}

// PostMessage POST /tickets/:id/messages.
func (h *CommentsHandler) PostMessage(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	message, err := h.comments.PostMessage(c.UserContext(), actor, c.Params("id"), req.Body, req.ReplyTo)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.MessageResponse{
		ID:          message.ID,
		ThreadGroup: message.ThreadGroup,
		Body:        message.Body,
		AuthorID:    message.AuthorID,
		CreatedAt:   message.CreatedAt,
	}})
}

// ListThreads GET /tickets/:id/messages.
func (h *CommentsHandler) ListThreads(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	threads, err := h.comments.ListThreads(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	resp := make([]dto.ThreadResponse, 0, len(threads))
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
		resp = append(resp, dto.ThreadResponse{
			CommentID: thread.Comment.ID,
			CreatedAt: thread.Comment.CreatedAt,
			Messages:  messages,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}
