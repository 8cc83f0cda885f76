package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"job-recommender/internal/database"
)

// JobListing is a row of the catalog owned by the scraping collaborator. Read-only here.
type JobListing struct {
	ID             int64
	Title          string
	Company        string
	Location       string
	URL            string
	Description    string
	SiteName       string
	TechStack      []string
	RequiredSkills []string
	CrawledAt      *time.Time
}

type JobListingRepository interface {
	// SearchByKeywords matches any keyword against title or description, newest first.
	SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]JobListing, error)
	ListRecent(ctx context.Context, limit int) ([]JobListing, error)
}

type PostgresJobListingRepository struct {
	db database.DB
}

func NewPostgresJobListingRepository(db database.DB) *PostgresJobListingRepository {
	return &PostgresJobListingRepository{db: db}
}

const jobListingColumns = `id,
	COALESCE(title, ''),
	COALESCE(company, ''),
	COALESCE(location, ''),
	COALESCE(url, ''),
	COALESCE(description, ''),
	COALESCE(site_name, ''),
	COALESCE(tech_stack::text, ''),
	COALESCE(required_skills::text, ''),
	crawled_at`

func (r *PostgresJobListingRepository) SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]JobListing, error) {
	limit = clampLimit(limit, 30, 200)

	patterns := make([]string, 0, len(keywords))
	seen := map[string]struct{}{}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		patterns = append(patterns, "%"+escapeLike(k)+"%")
	}
	if len(patterns) == 0 {
		return r.ListRecent(ctx, limit)
	}

	conds := make([]string, 0, len(patterns))
	args := make([]any, 0, len(patterns)+1)
	for i, p := range patterns {
		n := i + 1
		conds = append(conds, fmt.Sprintf("title ILIKE $%d OR description ILIKE $%d", n, n))
		args = append(args, p)
	}
	args = append(args, limit)

	q := `SELECT ` + jobListingColumns + `
		 FROM job_listings
		 WHERE ` + strings.Join(conds, " OR ") + `
		 ORDER BY crawled_at DESC NULLS LAST, id DESC
		 LIMIT $` + fmt.Sprint(len(args))

	return r.query(ctx, q, args...)
}

func (r *PostgresJobListingRepository) ListRecent(ctx context.Context, limit int) ([]JobListing, error) {
	limit = clampLimit(limit, 30, 200)
	return r.query(ctx,
		`SELECT `+jobListingColumns+`
		 FROM job_listings
		 ORDER BY crawled_at DESC NULLS LAST, id DESC
		 LIMIT $1`,
		limit,
	)
}

func (r *PostgresJobListingRepository) query(ctx context.Context, q string, args ...any) ([]JobListing, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]JobListing, 0)
	for rows.Next() {
		var (
			j         JobListing
			techStack string
			skills    string
		)
		if err := rows.Scan(
			&j.ID,
			&j.Title,
			&j.Company,
			&j.Location,
			&j.URL,
			&j.Description,
			&j.SiteName,
			&techStack,
			&skills,
			&j.CrawledAt,
		); err != nil {
			return nil, err
		}
		j.TechStack = SplitList(techStack)
		j.RequiredSkills = SplitList(skills)
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SplitList decodes a list column stored as a JSON array, a postgres array literal or comma separated text.
func SplitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" || raw == "{}" || raw == "[]" {
		return []string{}
	}

	if strings.HasPrefix(raw, "[") {
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			return compact(items)
		}
	}
	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		raw = raw[1 : len(raw)-1]
	}

	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"`)
	}
	return compact(parts)
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		out = append(out, it)
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
