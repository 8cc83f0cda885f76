package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"job-recommender/internal/database/sqldb"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqldb.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqldb.Wrap(db), mock
}

func TestCareerRepository_ListRankedCareers(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresCareerRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_career_rankings")).
		WithArgs(int64(7), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"career_name", "score"}).
			AddRow("Backend Developer", 0.9).
			AddRow("  ", 0.8).
			AddRow("DevOps", 0.7))

	got, err := repo.ListRankedCareers(context.Background(), 7, 5)
	require.NoError(t, err)
	assert.Equal(t, []RankedCareer{{Name: "Backend Developer", Score: 0.9}, {Name: "DevOps", Score: 0.7}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCareerRepository_LatestRecommendedCareers(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresCareerRepository(db)
	q := regexp.QuoteMeta("FROM career_analyses")

	mock.ExpectQuery(q).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"recommended_careers"}))
	mock.ExpectQuery(q).WithArgs(int64(2)).WillReturnRows(sqlmock.NewRows([]string{"recommended_careers"}).AddRow(nil))
	mock.ExpectQuery(q).WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"recommended_careers"}).AddRow(`["SRE"]`))
	mock.ExpectQuery(q).WithArgs(int64(4)).WillReturnError(errors.New("conn closed"))

	_, found, err := repo.LatestRecommendedCareers(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = repo.LatestRecommendedCareers(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, found)

	raw, found, err := repo.LatestRecommendedCareers(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `["SRE"]`, string(raw))

	_, _, err = repo.LatestRecommendedCareers(context.Background(), 4)
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserQueryRepository_ListAllPages(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserQueryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_career_rankings")).
		WithArgs(int64(2), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(3)).AddRow(int64(7)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_career_rankings")).
		WithArgs(int64(2), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(9)))

	ids, err := ListAllUserIDsWithProfile(context.Background(), repo, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7, 9}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func jobListingRows() *sqlmock.Rows {
	crawled := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "title", "company", "location", "url", "description", "site_name", "tech_stack", "required_skills", "crawled_at",
	}).
		AddRow(int64(11), "Backend Developer", "Acme", "Seoul", "https://jobs/11", "Go services", "jobstreet", `["Go","PostgreSQL"]`, "{Docker,\"CI CD\"}", crawled).
		AddRow(int64(12), "DevOps Engineer", "Beta", "Busan", "https://jobs/12", "k8s", "glints", "Kubernetes, Terraform", "", nil)
}

func TestJobListingRepository_SearchByKeywords(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresJobListingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("title ILIKE $1 OR description ILIKE $1 OR title ILIKE $2 OR description ILIKE $2")).
		WithArgs("%backend developer%", "%100\\% remote%", int64(30)).
		WillReturnRows(jobListingRows())

	got, err := repo.SearchByKeywords(context.Background(), []string{"Backend Developer", "backend developer ", "100% Remote", ""}, 30)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(11), got[0].ID)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, got[0].TechStack)
	assert.Equal(t, []string{"Docker", "CI CD"}, got[0].RequiredSkills)
	require.NotNil(t, got[0].CrawledAt)
	assert.Equal(t, []string{"Kubernetes", "Terraform"}, got[1].TechStack)
	assert.Empty(t, got[1].RequiredSkills)
	assert.Nil(t, got[1].CrawledAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobListingRepository_EmptyKeywordsFallsBackToRecent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresJobListingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY crawled_at DESC NULLS LAST, id DESC")).
		WithArgs(int64(10)).
		WillReturnRows(jobListingRows())

	got, err := repo.SearchByKeywords(context.Background(), []string{" "}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationRepository_UpsertForUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRecommendationRepository(db)
	at := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, job_listing_id) DO UPDATE SET")).
		WithArgs(int64(7), int64(11), 88.0, "strong Go match", `{"id":11}`, at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, job_listing_id) DO UPDATE SET")).
		WithArgs(int64(7), int64(12), 30.0, "fallback", "{}", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	n, err := repo.UpsertForUser(context.Background(), 7, []RecommendationUpsert{
		{JobListingID: 11, MatchScore: 88, MatchReason: "strong Go match", Data: []byte(`{"id":11}`), CalculatedAt: at},
		{JobListingID: 0, MatchScore: 99},
		{JobListingID: 12, MatchScore: 30, MatchReason: "fallback", CalculatedAt: at},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationRepository_UpsertRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRecommendationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO job_recommendations")).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	n, err := repo.UpsertForUser(context.Background(), 7, []RecommendationUpsert{{JobListingID: 11, MatchScore: 80}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job_listing_id=11")
	assert.Equal(t, 0, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationRepository_ListByUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRecommendationRepository(db)
	at := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND match_score >= $2")).
		WithArgs(int64(7), 40.0, int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "job_listing_id", "match_score", "match_reason", "recommendation_data", "calculated_at"}).
			AddRow(int64(1), int64(7), int64(11), 88.5, "good", `{"id":11}`, at))

	got, err := repo.ListByUser(context.Background(), 7, 0, 40)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 88.5, got[0].MatchScore)
	assert.JSONEq(t, `{"id":11}`, string(got[0].Data))
	assert.Equal(t, at, got[0].CalculatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommendationRepository_DeleteExcept(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRecommendationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("job_listing_id NOT IN ($2,$3)")).
		WithArgs(int64(7), int64(11), int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExcept(context.Background(), 7, []int64{11, 12})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"Go", "Redis"}, SplitList(`["Go", " Redis", ""]`))
	assert.Equal(t, []string{"a b", "c"}, SplitList(`{"a b",c}`))
	assert.Equal(t, []string{"x", "y"}, SplitList("x, y,"))
	assert.Empty(t, SplitList("null"))
	assert.Empty(t, SplitList(""))
}

func TestUserQueryRepository_SkipsEmptyAnalyses(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserQueryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`NOT IN ('', '[]', '{}', '""', 'null')`)).
		WithArgs(int64(100), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(3)).AddRow(int64(9)))

	ids, err := repo.ListUserIDsWithProfile(context.Background(), 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 9}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
