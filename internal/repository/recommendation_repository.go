package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"job-recommender/internal/database"
)

type RecommendationUpsert struct {
	JobListingID int64
	MatchScore   float64
	MatchReason  string
	// Data is the JSON encoded recommendation payload.
	Data         []byte
	CalculatedAt time.Time
}

type RecommendationRow struct {
	ID           int64
	UserID       int64
	JobListingID int64
	MatchScore   float64
	MatchReason  string
	Data         []byte
	CalculatedAt time.Time
}

type RecommendationRepository interface {
	// UpsertForUser writes all rows in one transaction; either every row lands or none does.
	UpsertForUser(ctx context.Context, userID int64, rows []RecommendationUpsert) (int, error)
	ListByUser(ctx context.Context, userID int64, limit int, minScore float64) ([]RecommendationRow, error)
	// DeleteExcept removes the user's rows whose job is not in keep.
	DeleteExcept(ctx context.Context, userID int64, keep []int64) (int64, error)
}

type PostgresRecommendationRepository struct {
	db database.DB
}

func NewPostgresRecommendationRepository(db database.DB) *PostgresRecommendationRepository {
	return &PostgresRecommendationRepository{db: db}
}

const upsertRecommendationSQL = `INSERT INTO job_recommendations (
		user_id, job_listing_id, match_score, match_reason, recommendation_data, calculated_at, created_at, updated_at
	)
	VALUES ($1,$2,$3,$4,$5,$6,$6,$6)
	ON CONFLICT (user_id, job_listing_id) DO UPDATE SET
		match_score = EXCLUDED.match_score,
		match_reason = EXCLUDED.match_reason,
		recommendation_data = EXCLUDED.recommendation_data,
		calculated_at = EXCLUDED.calculated_at,
		updated_at = EXCLUDED.updated_at`

func (r *PostgresRecommendationRepository) UpsertForUser(ctx context.Context, userID int64, rows []RecommendationUpsert) (int, error) {
	if userID <= 0 || len(rows) == 0 {
		return 0, nil
	}

	written := 0
	err := database.InTx(ctx, r.db, func(tx database.Tx) error {
		for _, it := range rows {
			if it.JobListingID <= 0 {
				continue
			}
			at := it.CalculatedAt
			if at.IsZero() {
				at = time.Now().UTC()
			}
			data := it.Data
			if len(data) == 0 {
				data = []byte("{}")
			}
			if _, err := tx.Exec(ctx, upsertRecommendationSQL,
				userID,
				it.JobListingID,
				it.MatchScore,
				it.MatchReason,
				string(data),
				at,
			); err != nil {
				return fmt.Errorf("upsert job_listing_id=%d: %w", it.JobListingID, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (r *PostgresRecommendationRepository) ListByUser(ctx context.Context, userID int64, limit int, minScore float64) ([]RecommendationRow, error) {
	limit = clampLimit(limit, 20, 100)
	if minScore < 0 {
		minScore = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, job_listing_id,
			COALESCE(match_score, 0)::float8,
			COALESCE(match_reason, ''),
			COALESCE(recommendation_data::text, '{}'),
			COALESCE(calculated_at, created_at, now())
		 FROM job_recommendations
		 WHERE user_id = $1 AND match_score >= $2
		 ORDER BY match_score DESC, calculated_at DESC, job_listing_id ASC
		 LIMIT $3`,
		userID, minScore, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RecommendationRow, 0)
	for rows.Next() {
		var (
			rr   RecommendationRow
			data string
		)
		if err := rows.Scan(&rr.ID, &rr.UserID, &rr.JobListingID, &rr.MatchScore, &rr.MatchReason, &data, &rr.CalculatedAt); err != nil {
			return nil, err
		}
		rr.Data = []byte(data)
		out = append(out, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRecommendationRepository) DeleteExcept(ctx context.Context, userID int64, keep []int64) (int64, error) {
	if userID <= 0 {
		return 0, nil
	}
	if len(keep) == 0 {
		return r.db.Exec(ctx, `DELETE FROM job_recommendations WHERE user_id = $1`, userID)
	}

	placeholders := make([]string, 0, len(keep))
	args := make([]any, 0, len(keep)+1)
	args = append(args, userID)
	for i, id := range keep {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, id)
	}

	return r.db.Exec(ctx,
		`DELETE FROM job_recommendations
		 WHERE user_id = $1 AND job_listing_id NOT IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
}
