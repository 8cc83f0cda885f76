// Package recommendation reads and writes the per-user recommendation cache.
package recommendation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"job-recommender/internal/logger"
	"job-recommender/internal/metrics"
	"job-recommender/internal/profile"
	"job-recommender/internal/repository"
	"job-recommender/internal/search"
)

var ErrPersistence = errors.New("persist recommendations")

type ProfileResolver interface {
	Resolve(ctx context.Context, userID int64) (profile.CareerProfile, error)
}

type Cache struct {
	recs     repository.RecommendationRepository
	jobs     repository.JobListingRepository
	resolver ProfileResolver
	log      logger.Logger
	now      func() time.Time
}

func NewCache(recs repository.RecommendationRepository, jobs repository.JobListingRepository, resolver ProfileResolver, log logger.Logger) *Cache {
	return &Cache{
		recs:     recs,
		jobs:     jobs,
		resolver: resolver,
		log:      logger.OrNop(log),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetCached returns the user's cached rows with score >= minScore, best first. A failing query is
// logged and reported as a miss.
func (c *Cache) GetCached(ctx context.Context, userID int64, limit int, minScore float64) []Recommendation {
	rows, err := c.recs.ListByUser(ctx, userID, limit, minScore)
	if err != nil {
		c.log.Warn("recommendation cache read failed, treating as miss", map[string]interface{}{
			"user_id": userID,
			"err":     err,
		})
		return nil
	}

	out := make([]Recommendation, 0, len(rows))
	for _, row := range rows {
		var rec Recommendation
		if err := json.Unmarshal(row.Data, &rec); err != nil {
			c.log.Debug("undecodable recommendation_data", map[string]interface{}{
				"user_id":        userID,
				"job_listing_id": row.JobListingID,
				"err":            err,
			})
			rec = Recommendation{}
		}
		// columns win over the blob
		rec.ID = row.JobListingID
		rec.MatchScore = row.MatchScore
		rec.MatchReason = row.MatchReason
		rec.CalculatedAt = row.CalculatedAt
		rec.TechStack = nonNil(rec.TechStack)
		rec.RequiredSkills = nonNil(rec.RequiredSkills)
		if rec.MatchLevel == "" {
			rec.MatchLevel = matchLevel(rec.MatchScore)
		}
		out = append(out, rec)
	}
	return out
}

// HasCached reports whether any row is persisted for the user, regardless of score. A failing
// query counts as no rows, like GetCached.
func (c *Cache) HasCached(ctx context.Context, userID int64) bool {
	rows, err := c.recs.ListByUser(ctx, userID, 1, 0)
	if err != nil {
		c.log.Warn("recommendation cache probe failed, treating as miss", map[string]interface{}{
			"user_id": userID,
			"err":     err,
		})
		return false
	}
	return len(rows) > 0
}

// ResolveCareerNames returns the names of the user's current career profile.
func (c *Cache) ResolveCareerNames(ctx context.Context, userID int64) ([]string, error) {
	p, err := c.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Names(), nil
}

// Placeholders builds a read-time list for a user with nothing cached: candidates seeded by the
// user's careers, each with its deterministic placeholder score. Nothing is written.
func (c *Cache) Placeholders(ctx context.Context, userID int64, limit int, minScore float64) ([]Recommendation, error) {
	names, err := c.ResolveCareerNames(ctx, userID)
	if err != nil {
		return nil, err
	}

	var jobs []repository.JobListing
	if len(names) > 0 {
		jobs, err = c.jobs.SearchByKeywords(ctx, search.CareerKeywords(names), limit)
		if err != nil {
			return nil, fmt.Errorf("load candidates: %w", err)
		}
	}
	if len(jobs) == 0 {
		jobs, err = c.jobs.ListRecent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("load candidates: %w", err)
		}
	}

	out := make([]Recommendation, 0, len(jobs))
	for _, j := range jobs {
		rec := FormatRecord(j, nil, names)
		if rec.MatchScore < minScore {
			continue
		}
		out = append(out, rec)
	}
	SortByScore(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Persist upserts one row per job for the user in a single transaction. Placeholder records are
// never written.
func (c *Cache) Persist(ctx context.Context, userID int64, recs []Recommendation) (int, error) {
	at := c.now()
	rows := make([]repository.RecommendationUpsert, 0, len(recs))
	for _, rec := range recs {
		if rec.Placeholder {
			continue
		}
		rec.CalculatedAt = at
		data, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("%w: encode job %d: %w", ErrPersistence, rec.ID, err)
		}
		rows = append(rows, repository.RecommendationUpsert{
			JobListingID: rec.ID,
			MatchScore:   rec.MatchScore,
			MatchReason:  rec.MatchReason,
			Data:         data,
			CalculatedAt: at,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := c.recs.UpsertForUser(ctx, userID, rows)
	if err != nil {
		return 0, fmt.Errorf("%w: user %d: %w", ErrPersistence, userID, err)
	}
	metrics.RowsPersisted.Add(float64(n))
	return n, nil
}

// PruneStale deletes the user's rows for jobs outside keep.
func (c *Cache) PruneStale(ctx context.Context, userID int64, keep []int64) (int64, error) {
	n, err := c.recs.DeleteExcept(ctx, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("%w: prune user %d: %w", ErrPersistence, userID, err)
	}
	return n, nil
}
