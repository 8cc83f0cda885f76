package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"job-recommender/internal/lock"
	"job-recommender/internal/logger"
	"job-recommender/internal/pipeline"
	"job-recommender/internal/recommendation"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrBusy         = errors.New("a calculation for this user is already running")
	ErrInternal     = errors.New("internal error")
)

const (
	defaultLimit   = 20
	maxLimit       = 50
	maxPerUserCap  = 50
	maxScoreFilter = 100
)

type RecommendationReader interface {
	GetCached(ctx context.Context, userID int64, limit int, minScore float64) []recommendation.Recommendation
	HasCached(ctx context.Context, userID int64) bool
	Placeholders(ctx context.Context, userID int64, limit int, minScore float64) ([]recommendation.Recommendation, error)
}

type RecommendationCalculator interface {
	CalculateForUser(ctx context.Context, userID int64, maxRecommendations int) pipeline.CycleResult
	CalculateDetached(userID int64, maxRecommendations int) bool
}

type RecommendationParams struct {
	Limit    int
	MinScore float64
}

type RecommendationList struct {
	Recommendations []recommendation.Recommendation
	TotalCount      int
	Cached          bool
	CalculatedAt    *time.Time
}

type CalculateParams struct {
	Background         bool
	MaxRecommendations int
}

type CalculateResult struct {
	Background bool
	// Started is false for a background request when a detached cycle for the user is already pending.
	Started              bool
	SavedCount           int
	TotalRecommendations int
}

type RecommendationUsecase interface {
	GetRecommendations(ctx context.Context, userID int64, params RecommendationParams) (RecommendationList, error)
	Calculate(ctx context.Context, userID int64, params CalculateParams) (CalculateResult, error)
}

type Recommendations struct {
	cache         RecommendationReader
	calc          RecommendationCalculator
	computeOnMiss bool
	log           logger.Logger
}

func NewRecommendationUsecase(cache RecommendationReader, calc RecommendationCalculator, computeOnMiss bool, log logger.Logger) *Recommendations {
	return &Recommendations{cache: cache, calc: calc, computeOnMiss: computeOnMiss, log: logger.OrNop(log)}
}

// GetRecommendations serves whatever was last persisted. Only when nothing is persisted for the user
// does it serve placeholders and, if enabled, start a detached cycle. It never waits on scoring or locking.
func (u *Recommendations) GetRecommendations(ctx context.Context, userID int64, params RecommendationParams) (RecommendationList, error) {
	if userID <= 0 {
		return RecommendationList{}, ErrUnauthorized
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	minScore := params.MinScore
	if minScore < 0 || minScore > maxScoreFilter {
		return RecommendationList{}, ErrInvalidInput
	}

	cached := u.cache.GetCached(ctx, userID, limit, minScore)
	if len(cached) > 0 {
		var latest time.Time
		for _, r := range cached {
			if r.CalculatedAt.After(latest) {
				latest = r.CalculatedAt
			}
		}
		out := RecommendationList{Recommendations: cached, TotalCount: len(cached), Cached: true}
		if !latest.IsZero() {
			out.CalculatedAt = &latest
		}
		return out, nil
	}

	// rows exist but none pass the score filter
	if minScore > 0 && u.cache.HasCached(ctx, userID) {
		return RecommendationList{Recommendations: []recommendation.Recommendation{}, Cached: true}, nil
	}

	if u.computeOnMiss && u.calc != nil {
		if u.calc.CalculateDetached(userID, 0) {
			u.log.Info("cache miss, detached cycle started", map[string]interface{}{"user_id": userID})
		}
	}

	placeholders, err := u.cache.Placeholders(ctx, userID, limit, minScore)
	if err != nil {
		u.log.Warn("placeholder recommendations unavailable", map[string]interface{}{"user_id": userID, "err": err})
		placeholders = []recommendation.Recommendation{}
	}
	return RecommendationList{
		Recommendations: placeholders,
		TotalCount:      len(placeholders),
		Cached:          false,
	}, nil
}

// Calculate runs a cycle for userID, synchronously or detached.
func (u *Recommendations) Calculate(ctx context.Context, userID int64, params CalculateParams) (CalculateResult, error) {
	if userID <= 0 {
		return CalculateResult{}, ErrInvalidInput
	}
	if params.MaxRecommendations < 0 || params.MaxRecommendations > maxPerUserCap {
		return CalculateResult{}, ErrInvalidInput
	}
	if u.calc == nil {
		return CalculateResult{}, ErrInternal
	}

	if params.Background {
		started := u.calc.CalculateDetached(userID, params.MaxRecommendations)
		return CalculateResult{Background: true, Started: started}, nil
	}

	res := u.calc.CalculateForUser(ctx, userID, params.MaxRecommendations)
	if res.Err != nil {
		if errors.Is(res.Err, lock.ErrLockTimeout) {
			return CalculateResult{}, ErrBusy
		}
		return CalculateResult{}, fmt.Errorf("%w: %w", ErrInternal, res.Err)
	}
	return CalculateResult{
		Started:              true,
		SavedCount:           res.SavedCount,
		TotalRecommendations: res.TotalRecommendations,
	}, nil
}

var _ RecommendationUsecase = (*Recommendations)(nil)
