package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/quizgen/internal/service"
	"github.com/makeasinger/quizgen/pkg/response"
)

type CheckpointHandler struct {
	service *service.JobService
}

func NewCheckpointHandler(svc *service.JobService) *CheckpointHandler {
	return &CheckpointHandler{service: svc}
}

// Summary handles GET /api/checkpoints/summary
func (h *CheckpointHandler) Summary(c *fiber.Ctx) error {
	result, err := h.service.ListCheckpointSummary(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}
