package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"job-recommender/internal/delivery/http/dto"
	"job-recommender/internal/delivery/http/middleware"
	"job-recommender/internal/pkg/response"
	"job-recommender/internal/usecase"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type RecommendationHandler struct {
	uc        usecase.RecommendationUsecase
	validator *validator.Validate
}

func NewRecommendationHandler(uc usecase.RecommendationUsecase) *RecommendationHandler {
	return &RecommendationHandler{uc: uc, validator: validator.New()}
}

// RegisterRoutes mounts the user endpoints on a /recommendations group that already carries bearer auth.
func (h *RecommendationHandler) RegisterRoutes(grp fiber.Router) {
	if grp == nil {
		return
	}
	grp.Get("/", h.GetRecommendations)
	grp.Post("/calculate", h.Calculate)
}

// RegisterAdminRoutes expects r to already carry the internal token middleware.
func (h *RecommendationHandler) RegisterAdminRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Post("/recommendations/calculate", h.AdminCalculate)
}

func (h *RecommendationHandler) GetRecommendations(c fiber.Ctx) error {
	userID, ok := middleware.UserIDFromCtx(c)
	if !ok {
		return middleware.NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, nil)
	}

	q := dto.RecommendationsQuery{Limit: parseQueryInt(c, "limit", 0)}
	minScore, err := parseQueryFloat(c, "min_score", 0)
	if err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "validation error: MinScore - number", nil, err)
	}
	q.MinScore = minScore
	if q.Limit > 50 {
		q.Limit = 50
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	if err := h.validator.Struct(q); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, extractValidationErrors(err), nil, err)
	}

	list, err := h.uc.GetRecommendations(c.Context(), userID, usecase.RecommendationParams{
		Limit:    q.Limit,
		MinScore: q.MinScore,
	})
	if err != nil {
		return mapRecommendationUsecaseError(err)
	}

	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.RecommendationsResponse{
		Recommendations: list.Recommendations,
		TotalCount:      list.TotalCount,
		Cached:          list.Cached,
		CalculatedAt:    list.CalculatedAt,
	})
}

func (h *RecommendationHandler) Calculate(c fiber.Ctx) error {
	userID, ok := middleware.UserIDFromCtx(c)
	if !ok {
		return middleware.NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, nil)
	}

	var req dto.CalculateRequest
	if err := bindOptionalBody(c, &req); err != nil {
		return err
	}
	if err := h.validator.Struct(req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, extractValidationErrors(err), nil, err)
	}

	return h.calculate(c, userID, req.Background, req.MaxRecommendations)
}

func (h *RecommendationHandler) AdminCalculate(c fiber.Ctx) error {
	var req dto.AdminCalculateRequest
	if err := bindOptionalBody(c, &req); err != nil {
		return err
	}
	if err := h.validator.Struct(req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, extractValidationErrors(err), nil, err)
	}

	return h.calculate(c, req.UserID, req.Background, req.MaxRecommendations)
}

func (h *RecommendationHandler) calculate(c fiber.Ctx, userID int64, background bool, maxRecs int) error {
	res, err := h.uc.Calculate(c.Context(), userID, usecase.CalculateParams{
		Background:         background,
		MaxRecommendations: maxRecs,
	})
	if err != nil {
		return mapRecommendationUsecaseError(err)
	}

	out := dto.CalculateResponse{
		UserID:               userID,
		Background:           res.Background,
		Started:              res.Started,
		SavedCount:           res.SavedCount,
		TotalRecommendations: res.TotalRecommendations,
	}
	if res.Background {
		return response.Accepted(c, out)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}

func bindOptionalBody(c fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.Bind().Body(out); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Invalid request body", nil, err)
	}
	return nil
}

func parseQueryInt(c fiber.Ctx, key string, defaultVal int) int {
	s := c.Query(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func parseQueryFloat(c fiber.Ctx, key string, defaultVal float64) (float64, error) {
	s := strings.TrimSpace(c.Query(key))
	if s == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(s, 64)
}

func extractValidationErrors(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return "validation error"
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s - %s", fe.Field(), fe.Tag()))
	}
	return "validation error: " + strings.Join(parts, ", ")
}

func mapRecommendationUsecaseError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, usecase.ErrUnauthorized):
		return middleware.NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, err)
	case errors.Is(err, usecase.ErrInvalidInput):
		return middleware.NewAppError(fiber.StatusBadRequest, "Invalid input", nil, err)
	case errors.Is(err, usecase.ErrBusy):
		return middleware.NewAppError(fiber.StatusConflict, "Calculation already running for this user", nil, err)
	default:
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, err)
	}
}
