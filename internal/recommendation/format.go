package recommendation

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"job-recommender/internal/evaluator"
	"job-recommender/internal/repository"
)

// RelevanceCeiling is the highest score a job judged irrelevant can carry.
const RelevanceCeiling = 30

const (
	placeholderBase  = 50
	placeholderRange = 30
)

var placeholderReasons = []string{
	"Title overlaps with your target careers",
	"Similar roles were posted recently",
	"Company hires for related positions",
	"Listing mentions skills from your career path",
}

// Recommendation is one job as served to clients and stored in recommendation_data.
type Recommendation struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Company        string    `json:"company"`
	Location       string    `json:"location"`
	URL            string    `json:"url"`
	Description    string    `json:"description"`
	SiteName       string    `json:"siteName"`
	TechStack      []string  `json:"techStack"`
	RequiredSkills []string  `json:"requiredSkills"`
	MatchScore     float64   `json:"matchScore"`
	MatchReason    string    `json:"matchReason"`
	MatchLevel     string    `json:"matchLevel"`
	MatchedCareer  string    `json:"matchedCareer,omitempty"`
	SkillMatch     []string  `json:"skillMatch,omitempty"`
	IsRelevant     bool      `json:"isRelevant"`
	Fallback       bool      `json:"fallback,omitempty"`
	Placeholder    bool      `json:"placeholder,omitempty"`
	CalculatedAt   time.Time `json:"calculatedAt"`
}

// FormatRecord turns a job and its evaluation into a Recommendation. A nil evaluation yields the
// deterministic placeholder for the job.
func FormatRecord(job repository.JobListing, ev *evaluator.Evaluation, careers []string) Recommendation {
	rec := Recommendation{
		ID:             job.ID,
		Title:          job.Title,
		Company:        job.Company,
		Location:       job.Location,
		URL:            job.URL,
		Description:    job.Description,
		SiteName:       job.SiteName,
		TechStack:      nonNil(job.TechStack),
		RequiredSkills: nonNil(job.RequiredSkills),
	}

	if ev == nil {
		h := placeholderHash(job)
		rec.MatchScore = float64(placeholderBase + h%placeholderRange)
		rec.MatchReason = placeholderReasons[(h>>8)%uint64(len(placeholderReasons))]
		if len(careers) > 0 {
			rec.MatchedCareer = careers[(h>>16)%uint64(len(careers))]
		}
		rec.SkillMatch = []string{}
		rec.Placeholder = true
		rec.MatchLevel = matchLevel(rec.MatchScore)
		return rec
	}

	score := ev.MatchScore
	if !ev.IsRelevant && score > RelevanceCeiling {
		score = RelevanceCeiling
	}
	rec.MatchScore = float64(score)
	rec.MatchReason = ev.Reason
	rec.MatchedCareer = ev.MatchedCareer
	rec.SkillMatch = nonNil(ev.SkillMatch)
	if len(ev.RequiredSkills) > 0 {
		rec.RequiredSkills = ev.RequiredSkills
	}
	rec.IsRelevant = ev.IsRelevant
	rec.Fallback = ev.Fallback
	rec.MatchLevel = matchLevel(rec.MatchScore)
	return rec
}

func placeholderHash(job repository.JobListing) uint64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", job.ID, job.Company, job.Title)))
	return binary.BigEndian.Uint64(sum[:8])
}

func matchLevel(score float64) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}

// SortByScore orders by score descending, then by job id.
func SortByScore(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].MatchScore != recs[j].MatchScore {
			return recs[i].MatchScore > recs[j].MatchScore
		}
		return recs[i].ID < recs[j].ID
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
