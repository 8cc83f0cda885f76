package seeder

import (
	"context"
	"encoding/json"
	"fmt"

	"job-recommender/internal/database"
)

type JobListingsSeeder struct{}

func (JobListingsSeeder) Name() string { return "job_listings" }

type sampleListing struct {
	Title          string
	Company        string
	Location       string
	URL            string
	Description    string
	SiteName       string
	TechStack      []string
	RequiredSkills []string
}

var sampleListings = []sampleListing{
	{
		Title: "Backend Engineer (Go)", Company: "Nusantara Pay", Location: "Jakarta",
		URL:         "https://jobs.example.com/nusantara-pay/backend-go",
		Description: "Build payment APIs in Go on Postgres and Redis.", SiteName: "Glints",
		TechStack: []string{"Go", "PostgreSQL", "Redis"}, RequiredSkills: []string{"Go", "SQL", "REST"},
	},
	{
		Title: "Frontend Developer", Company: "Kopi Digital", Location: "Bandung",
		URL:         "https://jobs.example.com/kopi-digital/frontend",
		Description: "React and TypeScript for a retail dashboard.", SiteName: "JobStreet",
		TechStack: []string{"React", "TypeScript"}, RequiredSkills: []string{"JavaScript", "CSS"},
	},
	{
		Title: "Data Engineer", Company: "Arus Data", Location: "Remote",
		URL:         "https://jobs.example.com/arus-data/data-engineer",
		Description: "Batch and streaming pipelines with Python and Kafka.", SiteName: "LinkedIn",
		TechStack: []string{"Python", "Kafka", "Airflow"}, RequiredSkills: []string{"Python", "SQL"},
	},
	{
		Title: "DevOps Engineer", Company: "Awan Cloud", Location: "Surabaya",
		URL:         "https://jobs.example.com/awan-cloud/devops",
		Description: "Kubernetes, Terraform and CI/CD for a backend platform team.", SiteName: "Kalibrr",
		TechStack: []string{"Kubernetes", "Terraform"}, RequiredSkills: []string{"Linux", "Docker"},
	},
	{
		Title: "Mobile Developer (Flutter)", Company: "Ojek Kita", Location: "Yogyakarta",
		URL:         "https://jobs.example.com/ojek-kita/flutter",
		Description: "Ship the rider app with Flutter.", SiteName: "Glints",
		TechStack: []string{"Flutter", "Dart"}, RequiredSkills: []string{"Dart"},
	},
}

// Run inserts each sample listing once, keyed by url.
func (JobListingsSeeder) Run(ctx context.Context, db database.DB) error {
	if err := EnsureTableColumns(ctx, db, "job_listings",
		"id", "title", "company", "location", "url", "description", "site_name", "tech_stack", "required_skills", "crawled_at",
	); err != nil {
		return err
	}

	return database.InTx(ctx, db, func(tx database.Tx) error {
		for _, it := range sampleListings {
			tech, err := json.Marshal(it.TechStack)
			if err != nil {
				return err
			}
			skills, err := json.Marshal(it.RequiredSkills)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(
				ctx,
				`INSERT INTO job_listings (title, company, location, url, description, site_name, tech_stack, required_skills, crawled_at)
				 SELECT $1, $2, $3, $4, $5, $6, $7, $8, now()
				 WHERE NOT EXISTS (SELECT 1 FROM job_listings WHERE url = $4)`,
				it.Title, it.Company, it.Location, it.URL, it.Description, it.SiteName, string(tech), string(skills),
			); err != nil {
				return fmt.Errorf("insert %s: %w", it.URL, err)
			}
		}
		return nil
	})
}
