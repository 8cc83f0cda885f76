package handler

import (
	"context"
	"time"

	"job-recommender/internal/delivery/http/dto"
	"job-recommender/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports a dependency as healthy when it returns nil.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks   map[string]HealthCheck
	sessions func() int
	started  time.Time
	timeout  time.Duration
}

func NewHealthHandler(checks map[string]HealthCheck, sessions func() int) *HealthHandler {
	return &HealthHandler{checks: checks, sessions: sessions, started: time.Now(), timeout: 2 * time.Second}
}

func (h *HealthHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/health", h.Health)
	r.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

// Health answers 503 when any registered check fails.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()

	out := dto.HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	}
	if h.sessions != nil {
		out.Sessions = h.sessions()
	}
	if len(h.checks) > 0 {
		out.Checks = make(map[string]string, len(h.checks))
	}
	for name, check := range h.checks {
		if check == nil {
			continue
		}
		if err := check(ctx); err != nil {
			out.Status = "degraded"
			out.Checks[name] = err.Error()
			continue
		}
		out.Checks[name] = "ok"
	}

	if out.Status != "ok" {
		return response.Error(c, fiber.StatusServiceUnavailable, response.MessageServiceUnavailable, out)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}
