package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"faq-rag/internal/models"
	"faq-rag/internal/rag"
)

// Service is the part of the orchestrator the handlers use.
type Service interface {
	Rebuild(ctx context.Context) (rag.Stats, error)
	Ask(ctx context.Context, question string) (models.Answer, error)
	Status() rag.Status
}

type FAQHandler struct {
	svc Service
}

func NewFAQHandler(svc Service) *FAQHandler {
	return &FAQHandler{svc: svc}
}

type AskRequest struct {
	Question string `json:"question"`
}

// Rebuild reloads the knowledge base and replaces the index.
func (h *FAQHandler) Rebuild(c *fiber.Ctx) error {
	stats, err := h.svc.Rebuild(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// Ask answers {"question": "..."}.
func (h *FAQHandler) Ask(c *fiber.Ctx) error {
	var req AskRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "question is required")
	}

	ans, err := h.svc.Ask(c.UserContext(), req.Question)
	if err != nil {
		return err
	}
	return c.JSON(ans)
}

func (h *FAQHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.svc.Status())
}
