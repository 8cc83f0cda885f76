package dto

import (
	"time"

	"job-recommender/internal/recommendation"
)

type RecommendationsQuery struct {
	Limit    int     `query:"limit" validate:"gte=0,lte=50"`
	MinScore float64 `query:"min_score" validate:"gte=0,lte=100"`
}

type RecommendationsResponse struct {
	Recommendations []recommendation.Recommendation `json:"recommendations"`
	TotalCount      int                             `json:"totalCount"`
	Cached          bool                            `json:"cached"`
	CalculatedAt    *time.Time                      `json:"calculatedAt"`
}

type CalculateRequest struct {
	Background         bool `json:"background"`
	MaxRecommendations int  `json:"max_recommendations" validate:"gte=0,lte=50"`
}

type AdminCalculateRequest struct {
	UserID             int64 `json:"user_id" validate:"required,gt=0"`
	Background         bool  `json:"background"`
	MaxRecommendations int   `json:"max_recommendations" validate:"gte=0,lte=50"`
}

type CalculateResponse struct {
	UserID               int64 `json:"user_id"`
	Background           bool  `json:"background"`
	Started              bool  `json:"started"`
	SavedCount           int   `json:"saved_count"`
	TotalRecommendations int   `json:"total_recommendations"`
}

type RunTriggeredResponse struct {
	Started bool `json:"started"`
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Uptime   string            `json:"uptime"`
	Sessions int               `json:"ws_sessions"`
}
