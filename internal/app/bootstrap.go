package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"job-recommender/internal/delivery/http/handler"
	"job-recommender/internal/delivery/http/middleware"
	"job-recommender/internal/delivery/http/routes"
	v1 "job-recommender/internal/delivery/http/routes/v1"
	"job-recommender/internal/infrastructure/cache"
	"job-recommender/internal/lock"
	"job-recommender/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

func New(c *Container) *App {
	f := fiber.New(fiber.Config{
		AppName:      c.Config.App.AppName,
		ErrorHandler: middleware.ErrorHandler(c.Log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	registerGlobalMiddleware(f, c)
	registerRoutes(f, c)

	return &App{Fiber: f, Container: c}
}

// Bootstrap builds the HTTP app on top of c. The returned cleanup closes the container.
func Bootstrap(c *Container) (*App, func() error, error) {
	if c == nil {
		return nil, nil, fmt.Errorf("nil container")
	}
	app := New(c)
	return app, c.Close, nil
}

func registerGlobalMiddleware(app *fiber.App, c *Container) {
	if app == nil {
		return
	}

	app.Use(middleware.NewAccessLogMiddleware(c.Log).Middleware())
	app.Use(middleware.Recover(c.Log))
}

func registerRoutes(app *fiber.App, c *Container) {
	if app == nil {
		return
	}

	checks := map[string]handler.HealthCheck{}
	if c.DB != nil {
		checks["database"] = c.DB.Ping
	}
	// in best-effort mode the service keeps working without redis
	if c.Redis != nil && lock.Mode(c.Config.Lock.Mode) != lock.ModeBestEffort {
		checks["redis"] = func(ctx context.Context) error { return cache.Probe(ctx, c.Redis, nil) }
	}

	var pipelineHandler *handler.PipelineHandler
	if c.Scheduler != nil {
		pipelineHandler = handler.NewPipelineHandler(c.Scheduler)
	}

	routes.NewRegistry(
		handler.NewHealthHandler(checks, c.Hub.ClientCount),
		v1.Deps{
			Auth:           middleware.NewAuthMiddleware(c.JWT),
			InternalToken:  c.Config.Internal.APIToken,
			Recommendation: handler.NewRecommendationHandler(c.Usecase),
			Pipeline:       pipelineHandler,
			WS:             ws.NewHandler(c.Hub, c.Log),
		},
	).Register(app)
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
