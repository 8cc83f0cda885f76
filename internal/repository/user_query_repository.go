package repository

import (
	"context"

	"job-recommender/internal/database"
)

type UserQueryRepository interface {
	// ListUserIDsWithProfile pages through users that have either an explicit career ranking or an
	// analysis carrying a non-empty recommended careers value.
	ListUserIDsWithProfile(ctx context.Context, limit, offset int) ([]int64, error)
}

type PostgresUserQueryRepository struct {
	db database.DB
}

func NewPostgresUserQueryRepository(db database.DB) *PostgresUserQueryRepository {
	return &PostgresUserQueryRepository{db: db}
}

func (r *PostgresUserQueryRepository) ListUserIDsWithProfile(ctx context.Context, limit, offset int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM (
			SELECT user_id FROM user_career_rankings
			UNION
			SELECT user_id FROM career_analyses
			WHERE recommended_careers IS NOT NULL
			  AND btrim(recommended_careers::text) NOT IN ('', '[]', '{}', '""', 'null')
		 ) u
		 ORDER BY user_id ASC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAllUserIDsWithProfile drains ListUserIDsWithProfile page by page.
func ListAllUserIDsWithProfile(ctx context.Context, repo UserQueryRepository, pageSize int) ([]int64, error) {
	if pageSize <= 0 {
		pageSize = 500
	}
	all := make([]int64, 0)
	for off := 0; ; {
		ids, err := repo.ListUserIDsWithProfile(ctx, pageSize, off)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		all = append(all, ids...)
		off += len(ids)
		if len(ids) < pageSize {
			break
		}
	}
	return all, nil
}
