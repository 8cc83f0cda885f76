package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"job-recommender/internal/database"

	"github.com/jackc/pgx/v5"
)

// RankedCareer is a row of the explicit per-user career ranking.
type RankedCareer struct {
	Name  string
	Score float64
}

type CareerRepository interface {
	// ListRankedCareers returns the user's explicit careers, best score first.
	ListRankedCareers(ctx context.Context, userID int64, limit int) ([]RankedCareer, error)
	// LatestRecommendedCareers returns the raw "recommended careers" payload of the user's most recent
	// analysis. found is false when the user has no analysis or the field is empty.
	LatestRecommendedCareers(ctx context.Context, userID int64) (raw []byte, found bool, err error)
}

type PostgresCareerRepository struct {
	db database.DB
}

func NewPostgresCareerRepository(db database.DB) *PostgresCareerRepository {
	return &PostgresCareerRepository{db: db}
}

func (r *PostgresCareerRepository) ListRankedCareers(ctx context.Context, userID int64, limit int) ([]RankedCareer, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := r.db.Query(ctx,
		`SELECT career_name, COALESCE(score, 0)::float8
		 FROM user_career_rankings
		 WHERE user_id = $1
		 ORDER BY score DESC NULLS LAST, career_name ASC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RankedCareer, 0, limit)
	for rows.Next() {
		var rc RankedCareer
		if err := rows.Scan(&rc.Name, &rc.Score); err != nil {
			return nil, err
		}
		rc.Name = strings.TrimSpace(rc.Name)
		if rc.Name == "" {
			continue
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresCareerRepository) LatestRecommendedCareers(ctx context.Context, userID int64) ([]byte, bool, error) {
	var raw *string
	err := r.db.QueryRow(ctx,
		`SELECT recommended_careers::text
		 FROM career_analyses
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		userID,
	).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, false, nil
	}
	return []byte(*raw), true, nil
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
