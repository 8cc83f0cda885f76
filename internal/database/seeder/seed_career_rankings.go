package seeder

import (
	"context"
	"fmt"

	"job-recommender/internal/database"
)

// CareerRankingsSeeder gives UserID an explicit career profile. A zero UserID seeds nothing.
type CareerRankingsSeeder struct {
	UserID int64
}

func (CareerRankingsSeeder) Name() string { return "user_career_rankings" }

var sampleCareers = []struct {
	Name  string
	Score float64
}{
	{"Backend Engineer", 92},
	{"DevOps Engineer", 78},
	{"Data Engineer", 64},
}

func (s CareerRankingsSeeder) Run(ctx context.Context, db database.DB) error {
	if s.UserID <= 0 {
		return nil
	}
	if err := EnsureTableColumns(ctx, db, "user_career_rankings", "user_id", "career_name", "score"); err != nil {
		return err
	}

	return database.InTx(ctx, db, func(tx database.Tx) error {
		for _, c := range sampleCareers {
			if _, err := tx.Exec(
				ctx,
				`INSERT INTO user_career_rankings (user_id, career_name, score)
				 SELECT $1, $2, $3
				 WHERE NOT EXISTS (SELECT 1 FROM user_career_rankings WHERE user_id = $1 AND career_name = $2)`,
				s.UserID, c.Name, c.Score,
			); err != nil {
				return fmt.Errorf("insert %s: %w", c.Name, err)
			}
		}
		return nil
	})
}
