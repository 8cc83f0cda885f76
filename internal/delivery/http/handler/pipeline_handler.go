package handler

import (
	"context"
	"errors"

	"job-recommender/internal/delivery/http/dto"
	"job-recommender/internal/delivery/http/middleware"
	"job-recommender/internal/pkg/response"
	"job-recommender/internal/scheduler"

	"github.com/gofiber/fiber/v3"
)

type RunTrigger interface {
	Trigger(ctx context.Context) error
	Running() bool
}

// PipelineHandler exposes the manual refresh-then-recompute trigger.
type PipelineHandler struct {
	trigger RunTrigger
}

func NewPipelineHandler(trigger RunTrigger) *PipelineHandler {
	return &PipelineHandler{trigger: trigger}
}

func (h *PipelineHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Post("/recommendations/run", h.Run)
	r.Get("/recommendations/run", h.Status)
}

func (h *PipelineHandler) Run(c fiber.Ctx) error {
	if h.trigger == nil {
		return middleware.NewAppError(fiber.StatusServiceUnavailable, "Scheduler disabled", nil, nil)
	}
	if err := h.trigger.Trigger(c.Context()); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			return middleware.NewAppError(fiber.StatusConflict, "Run already in progress", nil, err)
		}
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, err)
	}
	return response.Accepted(c, dto.RunTriggeredResponse{Started: true})
}

func (h *PipelineHandler) Status(c fiber.Ctx) error {
	running := h.trigger != nil && h.trigger.Running()
	return response.Success(c, fiber.StatusOK, response.MessageOK, fiber.Map{"running": running})
}
