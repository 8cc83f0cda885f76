package profile

import (
	"context"
	"errors"
	"testing"

	"job-recommender/internal/logger"
	"job-recommender/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCareerRepo struct {
	ranked    []repository.RankedCareer
	rankedErr error
	raw       []byte
	found     bool
	rawErr    error

	analysisCalls int
}

func (f *fakeCareerRepo) ListRankedCareers(_ context.Context, _ int64, limit int) ([]repository.RankedCareer, error) {
	if f.rankedErr != nil {
		return nil, f.rankedErr
	}
	if len(f.ranked) > limit {
		return f.ranked[:limit], nil
	}
	return f.ranked, nil
}

func (f *fakeCareerRepo) LatestRecommendedCareers(context.Context, int64) ([]byte, bool, error) {
	f.analysisCalls++
	return f.raw, f.found, f.rawErr
}

func TestResolve_ExplicitTierWins(t *testing.T) {
	repo := &fakeCareerRepo{
		ranked: []repository.RankedCareer{{Name: "Backend Developer", Score: 0.9}, {Name: "DevOps", Score: 0.7}},
		raw:    []byte(`["Ignored"]`),
		found:  true,
	}
	r := NewResolver(repo, logger.NewTestLogger(t))

	p, err := r.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, SourceExplicit, p.Source)
	assert.Equal(t, []string{"Backend Developer", "DevOps"}, p.Names())
	score, ok := p.Careers[0].Score()
	assert.True(t, ok)
	assert.Equal(t, 0.9, score)
	assert.Equal(t, 0, repo.analysisCalls)
}

func TestResolve_ExplicitTierCapsAtFive(t *testing.T) {
	repo := &fakeCareerRepo{}
	for _, n := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		repo.ranked = append(repo.ranked, repository.RankedCareer{Name: n, Score: 1})
	}
	p, err := NewResolver(repo, nil).Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, p.Careers, MaxCareers)
}

func TestResolve_InferredTier(t *testing.T) {
	repo := &fakeCareerRepo{raw: []byte(`"[\"Cloud Engineer (AWS)\", {\"name\": \"SRE\"}]"`), found: true}

	p, err := NewResolver(repo, logger.NewTestLogger(t)).Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, SourceInferred, p.Source)
	assert.Equal(t, []string{"Cloud Engineer", "SRE"}, p.Names())
}

func TestResolve_EmptyIsNotAnError(t *testing.T) {
	for _, repo := range []*fakeCareerRepo{
		{},
		{raw: []byte(`[]`), found: true},
		{raw: []byte(`true`), found: true},
	} {
		p, err := NewResolver(repo, logger.NewTestLogger(t)).Resolve(context.Background(), 7)
		require.NoError(t, err)
		assert.True(t, p.Empty())
		assert.Equal(t, SourceNone, p.Source)
		assert.NotNil(t, p.Careers)
	}
}

func TestResolve_StorageErrorsPropagate(t *testing.T) {
	boom := errors.New("db down")

	_, err := NewResolver(&fakeCareerRepo{rankedErr: boom}, nil).Resolve(context.Background(), 7)
	assert.ErrorIs(t, err, boom)

	_, err = NewResolver(&fakeCareerRepo{rawErr: boom}, nil).Resolve(context.Background(), 7)
	assert.ErrorIs(t, err, boom)
}
