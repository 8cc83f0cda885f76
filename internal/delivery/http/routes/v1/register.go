package v1

import (
	"job-recommender/internal/delivery/http/handler"
	"job-recommender/internal/delivery/http/middleware"
	"job-recommender/internal/ws"

	"github.com/gofiber/fiber/v3"
)

// Deps carries the constructed handlers; any nil handler leaves its routes unregistered.
type Deps struct {
	Auth           *middleware.AuthMiddleware
	InternalToken  string
	Recommendation *handler.RecommendationHandler
	Pipeline       *handler.PipelineHandler
	WS             *ws.Handler
}

func Register(r fiber.Router, d Deps) {
	if r == nil || d.Auth == nil {
		return
	}

	if d.Recommendation != nil {
		d.Recommendation.RegisterRoutes(r.Group("/recommendations", d.Auth.Middleware()))
	}

	admin := r.Group("/admin", middleware.InternalToken(d.InternalToken))
	if d.Recommendation != nil {
		d.Recommendation.RegisterAdminRoutes(admin)
	}
	if d.Pipeline != nil {
		d.Pipeline.RegisterRoutes(admin)
	}
}

// RegisterWS mounts the websocket endpoint. Browsers cannot set headers on upgrade, so the token may come from the query.
func RegisterWS(app fiber.Router, d Deps) {
	if app == nil || d.Auth == nil || d.WS == nil {
		return
	}
	app.Get("/ws/recommendations", d.Auth.WithQueryToken().Middleware(), d.WS.HandleRecommendationsWS)
}
