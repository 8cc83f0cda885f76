package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"job-recommender/internal/evaluator"
	"job-recommender/internal/lock"
	"job-recommender/internal/logger"
	"job-recommender/internal/profile"
	"job-recommender/internal/recommendation"
	"job-recommender/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRecs is an in-memory job_recommendations table keyed like the real unique constraint.
type memRecs struct {
	mu        sync.Mutex
	rows      map[[2]int64]repository.RecommendationRow
	nextID    int64
	upsertErr error
	pruned    map[int64][]int64
}

func newMemRecs() *memRecs {
	return &memRecs{rows: map[[2]int64]repository.RecommendationRow{}, pruned: map[int64][]int64{}}
}

func (m *memRecs) UpsertForUser(_ context.Context, userID int64, rows []repository.RecommendationUpsert) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	for _, r := range rows {
		k := [2]int64{userID, r.JobListingID}
		row, ok := m.rows[k]
		if !ok {
			m.nextID++
			row = repository.RecommendationRow{ID: m.nextID, UserID: userID, JobListingID: r.JobListingID}
		}
		row.MatchScore = r.MatchScore
		row.MatchReason = r.MatchReason
		row.Data = r.Data
		row.CalculatedAt = r.CalculatedAt
		m.rows[k] = row
	}
	return len(rows), nil
}

func (m *memRecs) ListByUser(_ context.Context, userID int64, limit int, minScore float64) ([]repository.RecommendationRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]repository.RecommendationRow, 0)
	for _, r := range m.rows {
		if r.UserID == userID && r.MatchScore >= minScore {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchScore != out[j].MatchScore {
			return out[i].MatchScore > out[j].MatchScore
		}
		return out[i].JobListingID < out[j].JobListingID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRecs) DeleteExcept(_ context.Context, userID int64, keep []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned[userID] = keep
	keepSet := map[int64]bool{}
	for _, id := range keep {
		keepSet[id] = true
	}
	var n int64
	for k := range m.rows {
		if k[0] == userID && !keepSet[k[1]] {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *memRecs) forUser(userID int64) map[int64]repository.RecommendationRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int64]repository.RecommendationRow{}
	for k, r := range m.rows {
		if k[0] == userID {
			out[k[1]] = r
		}
	}
	return out
}

type fakeCareers struct {
	ranked map[int64][]repository.RankedCareer
	err    map[int64]error
}

func (f *fakeCareers) ListRankedCareers(_ context.Context, userID int64, _ int) ([]repository.RankedCareer, error) {
	if err := f.err[userID]; err != nil {
		return nil, err
	}
	return f.ranked[userID], nil
}

func (f *fakeCareers) LatestRecommendedCareers(context.Context, int64) ([]byte, bool, error) {
	return nil, false, nil
}

type fakeJobs struct {
	jobs     []repository.JobListing
	searches atomic.Int32
}

func (f *fakeJobs) SearchByKeywords(context.Context, []string, int) ([]repository.JobListing, error) {
	f.searches.Add(1)
	return f.jobs, nil
}

func (f *fakeJobs) ListRecent(context.Context, int) ([]repository.JobListing, error) {
	return f.jobs, nil
}

type fakeUsers struct{ ids []int64 }

func (f *fakeUsers) ListUserIDsWithProfile(_ context.Context, limit, offset int) ([]int64, error) {
	if offset >= len(f.ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.ids) {
		end = len(f.ids)
	}
	return f.ids[offset:end], nil
}

type scoringClient struct {
	fn    func(ctx context.Context, prompt string) (string, error)
	calls atomic.Int32
}

func (s *scoringClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	s.calls.Add(1)
	return s.fn(ctx, prompt)
}

func (s *scoringClient) Close() error { return nil }

var jobIndexRe = regexp.MustCompile(`\[job_index=(\d+)\]`)

// scoreWith answers every job in the prompt with score(i); jobs scoring >= 70 are relevant.
func scoreWith(score func(i int) int) func(context.Context, string) (string, error) {
	return func(_ context.Context, prompt string) (string, error) {
		items := []map[string]any{}
		for _, m := range jobIndexRe.FindAllStringSubmatch(prompt, -1) {
			i, _ := strconv.Atoi(m[1])
			s := score(i)
			items = append(items, map[string]any{
				"job_index":      i,
				"is_relevant":    s >= 70,
				"match_score":    s,
				"matched_career": "Backend Developer",
				"reason":         fmt.Sprintf("score %d", s),
			})
		}
		b, err := json.Marshal(items)
		return string(b), err
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls map[int64]int
}

func (n *recordingNotifier) RecommendationsUpdated(userID int64, saved int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = map[int64]int{}
	}
	n.calls[userID] = saved
}

type harness struct {
	calc     *Calculator
	recs     *memRecs
	cache    *recommendation.Cache
	jobs     *fakeJobs
	careers  *fakeCareers
	client   *scoringClient
	notifier *recordingNotifier
}

func candidateJobs(n int) []repository.JobListing {
	out := make([]repository.JobListing, n)
	for i := range out {
		out[i] = repository.JobListing{ID: int64(1000 + i), Title: fmt.Sprintf("Engineer %d", i), Company: "Acme"}
	}
	return out
}

func newHarness(t *testing.T, locker lock.Locker, opts Options) *harness {
	t.Helper()
	log := logger.NewTestLogger(t)
	h := &harness{
		recs: newMemRecs(),
		jobs: &fakeJobs{jobs: candidateJobs(12)},
		careers: &fakeCareers{ranked: map[int64][]repository.RankedCareer{
			7: {{Name: "Backend Developer", Score: 0.9}, {Name: "DevOps", Score: 0.7}},
		}},
		client:   &scoringClient{fn: scoreWith(func(int) int { return 20 })},
		notifier: &recordingNotifier{},
	}
	resolver := profile.NewResolver(h.careers, log)
	h.cache = recommendation.NewCache(h.recs, h.jobs, resolver, log)
	eval, err := evaluator.New(h.client, log)
	require.NoError(t, err)
	if locker == nil {
		locker = lock.NewPassThrough(log)
	}
	h.calc = NewCalculator(locker, resolver, h.jobs, &fakeUsers{}, eval, h.cache, h.notifier, opts, log)
	return h
}

func TestCalculateForUser_ScenarioA_PersistsRelevantWithRawScores(t *testing.T) {
	h := newHarness(t, nil, Options{})
	raw := map[int]int{2: 85, 5: 72, 9: 91}
	h.client.fn = scoreWith(func(i int) int {
		if s, ok := raw[i]; ok {
			return s
		}
		return 35
	})

	res := h.calc.CalculateForUser(context.Background(), 7, 10)

	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.SavedCount)
	assert.Equal(t, 12, res.TotalRecommendations)
	assert.Equal(t, profile.SourceExplicit, res.Source)

	rows := h.recs.forUser(7)
	require.Len(t, rows, 3)
	for i, score := range raw {
		row, ok := rows[int64(1000+i)]
		require.True(t, ok, "job index %d", i)
		assert.Equal(t, float64(score), row.MatchScore)
	}
	assert.Equal(t, 3, h.notifier.calls[7])
}

func TestCalculateForUser_ScenarioB_OutageStillFillsCache(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.client.fn = func(context.Context, string) (string, error) { return "", errors.New("503 unavailable") }

	res := h.calc.CalculateForUser(context.Background(), 7, 10)

	require.NoError(t, res.Err)
	assert.Equal(t, 10, res.SavedCount)
	for _, row := range h.recs.forUser(7) {
		assert.LessOrEqual(t, row.MatchScore, float64(recommendation.RelevanceCeiling))
		assert.Equal(t, evaluator.FallbackReason, row.MatchReason)
	}

	got := h.cache.GetCached(context.Background(), 7, 10, 0)
	assert.Len(t, got, 10)
}

func TestCalculateForUser_RelevanceOverrideOnPersistedRows(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.client.fn = func(_ context.Context, prompt string) (string, error) {
		items := []map[string]any{}
		for _, m := range jobIndexRe.FindAllStringSubmatch(prompt, -1) {
			i, _ := strconv.Atoi(m[1])
			items = append(items, map[string]any{"job_index": i, "is_relevant": i%2 == 0, "match_score": 95})
		}
		b, _ := json.Marshal(items)
		return string(b), nil
	}
	// irrelevant answers are dropped, so only fallbacks could carry isRelevant=false; force one batch to fail
	h.jobs.jobs = candidateJobs(15)
	inner := h.client.fn
	h.client.fn = func(ctx context.Context, prompt string) (string, error) {
		if jobIndexRe.FindStringSubmatch(prompt)[1] == "10" {
			return "", errors.New("quota")
		}
		return inner(ctx, prompt)
	}

	res := h.calc.CalculateForUser(context.Background(), 7, 30)
	require.NoError(t, res.Err)

	for id, row := range h.recs.forUser(7) {
		var rec recommendation.Recommendation
		require.NoError(t, json.Unmarshal(row.Data, &rec))
		if !rec.IsRelevant {
			assert.LessOrEqual(t, row.MatchScore, 30.0, "job %d", id)
		} else {
			assert.Equal(t, 95.0, row.MatchScore)
		}
	}
	assert.Equal(t, 5+5, res.SavedCount)
}

func TestCalculateForUser_EmptyProfileIsNoOp(t *testing.T) {
	h := newHarness(t, nil, Options{})

	res := h.calc.CalculateForUser(context.Background(), 99, 10)

	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.SavedCount)
	assert.Equal(t, profile.SourceNone, res.Source)
	assert.Empty(t, h.recs.forUser(99))
	assert.Equal(t, int32(0), h.client.calls.Load())
	assert.Equal(t, int32(0), h.jobs.searches.Load())
	assert.Empty(t, h.notifier.calls)
}

func TestCalculateForUser_Idempotent(t *testing.T) {
	h := newHarness(t, nil, Options{})
	round := 0
	h.client.fn = func(ctx context.Context, prompt string) (string, error) {
		return scoreWith(func(i int) int { return 70 + round + i })(ctx, prompt)
	}

	res := h.calc.CalculateForUser(context.Background(), 7, 10)
	require.NoError(t, res.Err)
	first := h.recs.forUser(7)

	round = 5
	res = h.calc.CalculateForUser(context.Background(), 7, 10)
	require.NoError(t, res.Err)
	second := h.recs.forUser(7)

	require.Len(t, second, len(first))
	for id, row := range second {
		prev, ok := first[id]
		require.True(t, ok)
		assert.Equal(t, prev.ID, row.ID)
		assert.Equal(t, prev.MatchScore+5, row.MatchScore)
	}
}

func TestCalculateForUser_PersistenceFailure(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.client.fn = scoreWith(func(int) int { return 90 })
	h.recs.upsertErr = errors.New("connection refused")

	res := h.calc.CalculateForUser(context.Background(), 7, 10)

	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, recommendation.ErrPersistence))
	assert.Equal(t, 0, res.SavedCount)
	assert.Empty(t, h.notifier.calls)
}

func TestCalculateForUser_PruneStale(t *testing.T) {
	h := newHarness(t, nil, Options{PruneStale: true})
	_, err := h.recs.UpsertForUser(context.Background(), 7, []repository.RecommendationUpsert{{JobListingID: 1, MatchScore: 99}})
	require.NoError(t, err)
	h.client.fn = scoreWith(func(i int) int {
		if i < 2 {
			return 80
		}
		return 10
	})

	res := h.calc.CalculateForUser(context.Background(), 7, 10)
	require.NoError(t, res.Err)

	rows := h.recs.forUser(7)
	assert.Len(t, rows, 2)
	_, stale := rows[1]
	assert.False(t, stale)
	assert.ElementsMatch(t, []int64{1000, 1001}, h.recs.pruned[7])
}

func newRedisLocker(t *testing.T, opts lock.Options) (*lock.RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.NewRedisLock(client, opts, logger.NewTestLogger(t)), mr
}

func TestCalculateForUser_MutualExclusion(t *testing.T) {
	locker, _ := newRedisLocker(t, lock.Options{Lease: time.Minute, MaxWait: 5 * time.Second, PollInterval: 5 * time.Millisecond})
	h := newHarness(t, locker, Options{})

	var active, peak int32
	h.client.fn = func(ctx context.Context, prompt string) (string, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return scoreWith(func(int) int { return 80 })(ctx, prompt)
	}
	// one batch per cycle, so concurrent batches within a cycle do not count as overlap
	h.jobs.jobs = candidateJobs(5)

	var wg sync.WaitGroup
	results := make([]CycleResult, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.calc.CalculateForUser(context.Background(), 7, 10)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, 5, r.SavedCount)
	}
}

func TestCalculateForUser_LockTimeoutLeavesCacheUntouched(t *testing.T) {
	locker, mr := newRedisLocker(t, lock.Options{Lease: time.Minute, MaxWait: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	h := newHarness(t, locker, Options{})
	require.NoError(t, mr.Set(lock.Key(7), "other-holder"))

	res := h.calc.CalculateForUser(context.Background(), 7, 10)

	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, lock.ErrLockTimeout))
	assert.Empty(t, h.recs.forUser(7))
	assert.Equal(t, int32(0), h.client.calls.Load())
}

func TestCalculateForAllUsers_ContinuesPastFailures(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.client.fn = scoreWith(func(i int) int {
		if i < 4 {
			return 90
		}
		return 10
	})
	for _, uid := range []int64{1, 2, 3, 4} {
		h.careers.ranked[uid] = []repository.RankedCareer{{Name: "Backend Developer", Score: 1}}
	}
	h.careers.err = map[int64]error{3: errors.New("statement timeout")}
	h.calc.users = &fakeUsers{ids: []int64{1, 2, 3, 4, 7}}

	sum, err := h.calc.CalculateForAllUsers(context.Background(), 2, 10)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.ProcessedUsers)
	assert.Equal(t, 4, sum.SucceededUsers)
	assert.Equal(t, 16, sum.TotalRecommendations)
	require.Len(t, sum.PerUserErrors, 1)
	assert.Contains(t, sum.PerUserErrors[3].Error(), "statement timeout")
	assert.Len(t, h.recs.forUser(7), 4)
}

func TestCalculateForAllUsers_NoUsers(t *testing.T) {
	h := newHarness(t, nil, Options{})
	sum, err := h.calc.CalculateForAllUsers(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.ProcessedUsers)
	assert.Empty(t, sum.PerUserErrors)
}

func TestCalculateDetached(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.client.fn = scoreWith(func(int) int { return 88 })

	require.True(t, h.calc.CalculateDetached(7, 3))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.calc.Wait(ctx))
	assert.Len(t, h.recs.forUser(7), 3)
}

func TestCalculateDetached_SkipsWhenPending(t *testing.T) {
	h := newHarness(t, nil, Options{})
	release := make(chan struct{})
	h.client.fn = func(ctx context.Context, prompt string) (string, error) {
		<-release
		return scoreWith(func(int) int { return 88 })(ctx, prompt)
	}

	require.True(t, h.calc.CalculateDetached(7, 3))
	assert.False(t, h.calc.CalculateDetached(7, 3))
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.calc.Wait(ctx))
	assert.True(t, h.calc.CalculateDetached(7, 3))
	require.NoError(t, h.calc.Wait(ctx))
}
