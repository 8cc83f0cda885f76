package recommendation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"job-recommender/internal/evaluator"
	"job-recommender/internal/logger"
	"job-recommender/internal/profile"
	"job-recommender/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecs struct {
	rows      []repository.RecommendationRow
	listErr   error
	upsertErr error
	deleteErr error
	upserted  []repository.RecommendationUpsert
	kept      []int64
}

func (f *fakeRecs) UpsertForUser(_ context.Context, _ int64, rows []repository.RecommendationUpsert) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upserted = append(f.upserted, rows...)
	return len(rows), nil
}

func (f *fakeRecs) ListByUser(context.Context, int64, int, float64) ([]repository.RecommendationRow, error) {
	return f.rows, f.listErr
}

func (f *fakeRecs) DeleteExcept(_ context.Context, _ int64, keep []int64) (int64, error) {
	f.kept = keep
	return 3, f.deleteErr
}

type fakeJobs struct {
	search   []repository.JobListing
	recent   []repository.JobListing
	keywords []string
}

func (f *fakeJobs) SearchByKeywords(_ context.Context, keywords []string, _ int) ([]repository.JobListing, error) {
	f.keywords = keywords
	return f.search, nil
}

func (f *fakeJobs) ListRecent(context.Context, int) ([]repository.JobListing, error) {
	return f.recent, nil
}

type resolverFunc func(ctx context.Context, userID int64) (profile.CareerProfile, error)

func (f resolverFunc) Resolve(ctx context.Context, userID int64) (profile.CareerProfile, error) {
	return f(ctx, userID)
}

func staticProfile(names ...string) resolverFunc {
	return func(_ context.Context, userID int64) (profile.CareerProfile, error) {
		refs := make([]profile.CareerRef, 0, len(names))
		for _, n := range names {
			refs = append(refs, profile.Named(n))
		}
		src := profile.SourceExplicit
		if len(refs) == 0 {
			src = profile.SourceNone
		}
		return profile.CareerProfile{UserID: userID, Careers: refs, Source: src}, nil
	}
}

var job = repository.JobListing{ID: 11, Title: "Backend Developer", Company: "Acme", Location: "Jakarta", SiteName: "glints"}

func TestFormatRecord_IrrelevantScoreIsClamped(t *testing.T) {
	for _, raw := range []int{31, 50, 95, 100} {
		rec := FormatRecord(job, &evaluator.Evaluation{IsRelevant: false, MatchScore: raw}, nil)
		assert.Equal(t, float64(RelevanceCeiling), rec.MatchScore, "raw %d", raw)
	}

	low := FormatRecord(job, &evaluator.Evaluation{IsRelevant: false, MatchScore: 12}, nil)
	assert.Equal(t, 12.0, low.MatchScore)

	rel := FormatRecord(job, &evaluator.Evaluation{IsRelevant: true, MatchScore: 88, Reason: "strong", MatchedCareer: "Backend Developer"}, nil)
	assert.Equal(t, 88.0, rel.MatchScore)
	assert.Equal(t, "strong", rel.MatchReason)
	assert.Equal(t, "high", rel.MatchLevel)
	assert.False(t, rel.Placeholder)
}

func TestFormatRecord_FallbackEvaluation(t *testing.T) {
	ev := evaluator.Default(0, []string{"Backend Developer"})
	rec := FormatRecord(job, &ev, nil)

	assert.Equal(t, float64(RelevanceCeiling), rec.MatchScore)
	assert.Equal(t, evaluator.FallbackReason, rec.MatchReason)
	assert.True(t, rec.Fallback)
	assert.Equal(t, "low", rec.MatchLevel)
}

func TestFormatRecord_PlaceholderIsDeterministic(t *testing.T) {
	careers := []string{"Backend Developer", "DevOps"}
	a := FormatRecord(job, nil, careers)
	b := FormatRecord(job, nil, careers)

	assert.Equal(t, a, b)
	assert.True(t, a.Placeholder)
	assert.GreaterOrEqual(t, a.MatchScore, 50.0)
	assert.Less(t, a.MatchScore, 80.0)
	assert.Contains(t, careers, a.MatchedCareer)
	assert.Contains(t, placeholderReasons, a.MatchReason)

	other := job
	other.Title = "Frontend Developer"
	seen := map[float64]bool{}
	for i := int64(1); i <= 50; i++ {
		other.ID = i
		seen[FormatRecord(other, nil, careers).MatchScore] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestCache_GetCachedDecodesRows(t *testing.T) {
	at := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)
	blob, _ := json.Marshal(Recommendation{ID: 11, Title: "Backend Developer", Company: "Acme", MatchScore: 10, TechStack: []string{"Go"}})
	recs := &fakeRecs{rows: []repository.RecommendationRow{
		{JobListingID: 11, MatchScore: 88, MatchReason: "good", Data: blob, CalculatedAt: at},
		{JobListingID: 12, MatchScore: 40, MatchReason: "ok", Data: []byte("not json"), CalculatedAt: at},
	}}
	c := NewCache(recs, &fakeJobs{}, staticProfile(), logger.NewTestLogger(t))

	got := c.GetCached(context.Background(), 7, 10, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "Backend Developer", got[0].Title)
	assert.Equal(t, 88.0, got[0].MatchScore)
	assert.Equal(t, []string{"Go"}, got[0].TechStack)
	assert.Equal(t, at, got[0].CalculatedAt)
	assert.Equal(t, int64(12), got[1].ID)
	assert.Equal(t, "medium", got[1].MatchLevel)
	assert.NotNil(t, got[1].RequiredSkills)
}

func TestCache_GetCachedFailureIsMiss(t *testing.T) {
	c := NewCache(&fakeRecs{listErr: errors.New("relation does not exist")}, &fakeJobs{}, staticProfile(), logger.NewTestLogger(t))
	assert.Empty(t, c.GetCached(context.Background(), 7, 10, 0))
}

func TestCache_PersistSkipsPlaceholdersAndStampsTime(t *testing.T) {
	at := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)
	recs := &fakeRecs{}
	c := NewCache(recs, &fakeJobs{}, staticProfile(), nil)
	c.now = func() time.Time { return at }

	n, err := c.Persist(context.Background(), 7, []Recommendation{
		{ID: 11, MatchScore: 88, MatchReason: "good"},
		{ID: 12, MatchScore: 60, Placeholder: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, recs.upserted, 1)
	assert.Equal(t, int64(11), recs.upserted[0].JobListingID)
	assert.Equal(t, at, recs.upserted[0].CalculatedAt)

	var stored Recommendation
	require.NoError(t, json.Unmarshal(recs.upserted[0].Data, &stored))
	assert.Equal(t, at, stored.CalculatedAt)
}

func TestCache_PersistWrapsFailure(t *testing.T) {
	dbErr := errors.New("deadlock detected")
	c := NewCache(&fakeRecs{upsertErr: dbErr}, &fakeJobs{}, staticProfile(), nil)

	_, err := c.Persist(context.Background(), 7, []Recommendation{{ID: 11, MatchScore: 88}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, dbErr))
}

func TestCache_PruneStale(t *testing.T) {
	recs := &fakeRecs{}
	c := NewCache(recs, &fakeJobs{}, staticProfile(), nil)

	n, err := c.PruneStale(context.Background(), 7, []int64{11, 12})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []int64{11, 12}, recs.kept)

	recs.deleteErr = errors.New("boom")
	_, err = c.PruneStale(context.Background(), 7, nil)
	assert.True(t, errors.Is(err, ErrPersistence))
}

func TestCache_Placeholders(t *testing.T) {
	jobs := &fakeJobs{search: []repository.JobListing{
		{ID: 1, Title: "Backend Developer", Company: "Acme"},
		{ID: 2, Title: "Platform Engineer", Company: "Beta"},
		{ID: 3, Title: "SRE", Company: "Gamma"},
	}}
	c := NewCache(&fakeRecs{}, jobs, staticProfile("Backend Developer", "DevOps"), nil)

	got, err := c.Placeholders(context.Background(), 7, 2, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"backend developer", "devops", "back end developer", "backend engineer", "site reliability"}, jobs.keywords)
	assert.GreaterOrEqual(t, got[0].MatchScore, got[1].MatchScore)
	for _, r := range got {
		assert.True(t, r.Placeholder)
	}

	again, err := c.Placeholders(context.Background(), 7, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestCache_PlaceholdersWithoutProfileUsesRecent(t *testing.T) {
	jobs := &fakeJobs{recent: []repository.JobListing{{ID: 5, Title: "Data Analyst", Company: "Delta"}}}
	c := NewCache(&fakeRecs{}, jobs, staticProfile(), nil)

	got, err := c.Placeholders(context.Background(), 7, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, jobs.keywords)
	assert.Empty(t, got[0].MatchedCareer)
}

func TestSortByScore(t *testing.T) {
	recs := []Recommendation{{ID: 3, MatchScore: 40}, {ID: 2, MatchScore: 90}, {ID: 1, MatchScore: 40}}
	SortByScore(recs)
	assert.Equal(t, []int64{2, 1, 3}, []int64{recs[0].ID, recs[1].ID, recs[2].ID})
}

func TestCache_PlaceholdersFallBackToRecentWhenSearchIsEmpty(t *testing.T) {
	jobs := &fakeJobs{recent: []repository.JobListing{{ID: 5, Title: "Data Analyst", Company: "Delta"}}}
	c := NewCache(&fakeRecs{}, jobs, staticProfile("Backend Developer"), nil)

	got, err := c.Placeholders(context.Background(), 7, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, jobs.keywords)
	assert.Equal(t, int64(5), got[0].ID)
	assert.Equal(t, "Backend Developer", got[0].MatchedCareer)
}

func TestCache_HasCachedIgnoresScore(t *testing.T) {
	recs := &fakeRecs{rows: []repository.RecommendationRow{{JobListingID: 11, MatchScore: 65}}}
	c := NewCache(recs, &fakeJobs{}, staticProfile(), nil)
	assert.True(t, c.HasCached(context.Background(), 7))

	assert.False(t, NewCache(&fakeRecs{}, &fakeJobs{}, staticProfile(), nil).HasCached(context.Background(), 7))
	assert.False(t, NewCache(&fakeRecs{listErr: errors.New("down")}, &fakeJobs{}, staticProfile(), nil).HasCached(context.Background(), 7))
}
