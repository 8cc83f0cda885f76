// Package seeder fills a development database with sample listings and career rankings so the
// recommendation pipeline has something to work on.
package seeder

import (
	"context"

	"job-recommender/internal/database"
)

type Seeder interface {
	Name() string
	Run(ctx context.Context, db database.DB) error
}
