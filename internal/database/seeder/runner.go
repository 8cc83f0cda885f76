package seeder

import (
	"context"
	"fmt"

	"job-recommender/internal/database"
	"job-recommender/internal/logger"
)

type Runner struct {
	Seeders []Seeder
	Log     logger.Logger
}

func (r Runner) Run(ctx context.Context, db database.DB) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	log := logger.OrNop(r.Log)
	for _, s := range r.Seeders {
		if s == nil {
			continue
		}
		if err := s.Run(ctx, db); err != nil {
			return fmt.Errorf("seed %s: %w", s.Name(), err)
		}
		log.Info("seeded", map[string]interface{}{"seeder": s.Name()})
	}
	return nil
}
