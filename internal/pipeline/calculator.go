// Package pipeline runs recommendation cycles for one user or for every user with a career profile.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"job-recommender/internal/evaluator"
	"job-recommender/internal/lock"
	"job-recommender/internal/logger"
	"job-recommender/internal/metrics"
	"job-recommender/internal/profile"
	"job-recommender/internal/recommendation"
	"job-recommender/internal/repository"
	"job-recommender/internal/search"
)

type Evaluator interface {
	Evaluate(ctx context.Context, careers []string, jobs []repository.JobListing) map[int]evaluator.Evaluation
}

type Store interface {
	Persist(ctx context.Context, userID int64, recs []recommendation.Recommendation) (int, error)
	PruneStale(ctx context.Context, userID int64, keep []int64) (int64, error)
}

// Notifier is told about every cycle that saved at least one row.
type Notifier interface {
	RecommendationsUpdated(userID int64, savedCount int)
}

type Options struct {
	MaxRecommendations int
	BatchSize          int
	CandidateLimit     int
	PruneStale         bool
	// DetachedTimeout bounds a cycle started without a caller context.
	DetachedTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRecommendations <= 0 {
		o.MaxRecommendations = 10
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = evaluator.MaxJobs
	}
	if o.DetachedTimeout <= 0 {
		o.DetachedTimeout = 10 * time.Minute
	}
	return o
}

type CycleResult struct {
	UserID     int64
	Success    bool
	SavedCount int
	// TotalRecommendations is the number of candidates that were evaluated.
	TotalRecommendations int
	Source               profile.Source
	Err                  error
}

type RunSummary struct {
	ProcessedUsers       int
	SucceededUsers       int
	TotalRecommendations int
	PerUserErrors        map[int64]error
	Duration             time.Duration
}

type Calculator struct {
	lock      lock.Locker
	resolver  recommendation.ProfileResolver
	jobs      repository.JobListingRepository
	users     repository.UserQueryRepository
	evaluator Evaluator
	store     Store
	notifier  Notifier
	opts      Options
	log       logger.Logger

	detached sync.WaitGroup
	inflight sync.Map
}

func NewCalculator(
	locker lock.Locker,
	resolver recommendation.ProfileResolver,
	jobs repository.JobListingRepository,
	users repository.UserQueryRepository,
	eval Evaluator,
	store Store,
	notifier Notifier,
	opts Options,
	log logger.Logger,
) *Calculator {
	return &Calculator{
		lock:      locker,
		resolver:  resolver,
		jobs:      jobs,
		users:     users,
		evaluator: eval,
		store:     store,
		notifier:  notifier,
		opts:      opts.withDefaults(),
		log:       logger.OrNop(log).With(map[string]interface{}{"pipeline": "recommendations"}),
	}
}

func (c *Calculator) Options() Options { return c.opts }

// CalculateForUser runs one cycle for userID while holding the user's lock. maxRecommendations <= 0
// uses the configured cap.
func (c *Calculator) CalculateForUser(ctx context.Context, userID int64, maxRecommendations int) CycleResult {
	if maxRecommendations <= 0 {
		maxRecommendations = c.opts.MaxRecommendations
	}
	start := time.Now()
	log := c.log.With(map[string]interface{}{"user_id": userID})
	log.Info("cycle started", map[string]interface{}{"status": "started", "max": maxRecommendations})

	var res CycleResult
	err := c.lock.WithLock(ctx, userID, func(ctx context.Context) error {
		res = c.cycle(ctx, log, userID, maxRecommendations)
		return res.Err
	})

	res.UserID = userID
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil && res.Source == profile.SourceNone:
		metrics.CyclesTotal.WithLabelValues("noop").Inc()
	case err == nil:
		metrics.CyclesTotal.WithLabelValues("success").Inc()
	case errors.Is(err, lock.ErrLockTimeout):
		metrics.CyclesTotal.WithLabelValues("lock_timeout").Inc()
	default:
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
	}

	if err != nil {
		res.Success = false
		res.SavedCount = 0
		res.Err = err
		log.Error("cycle failed", map[string]interface{}{
			"status":   "error",
			"err":      err,
			"duration": time.Since(start).String(),
		})
		return res
	}

	log.Info("cycle finished", map[string]interface{}{
		"status":   "finished",
		"source":   string(res.Source),
		"saved":    res.SavedCount,
		"total":    res.TotalRecommendations,
		"duration": time.Since(start).String(),
	})
	if res.SavedCount > 0 && c.notifier != nil {
		c.notifier.RecommendationsUpdated(userID, res.SavedCount)
	}
	return res
}

func (c *Calculator) cycle(ctx context.Context, log logger.Logger, userID int64, max int) CycleResult {
	p, err := c.resolver.Resolve(ctx, userID)
	if err != nil {
		return CycleResult{Err: fmt.Errorf("resolve profile: %w", err)}
	}
	if p.Empty() {
		log.Info("empty career profile, nothing to compute", map[string]interface{}{"step": "resolve_profile"})
		return CycleResult{Success: true, Source: profile.SourceNone}
	}
	names := p.Names()
	log.Debug("profile resolved", map[string]interface{}{"step": "resolve_profile", "source": string(p.Source), "careers": names})

	jobs, err := c.fetchCandidates(ctx, names)
	if err != nil {
		return CycleResult{Source: p.Source, Err: fmt.Errorf("fetch candidates: %w", err)}
	}
	log.Debug("candidates fetched", map[string]interface{}{"step": "fetch_candidates", "count": len(jobs)})
	if len(jobs) == 0 {
		return CycleResult{Success: true, Source: p.Source}
	}

	evals := c.evaluator.Evaluate(ctx, names, jobs)

	recs := make([]recommendation.Recommendation, 0, len(evals))
	for i := 0; i < len(jobs) && i < evaluator.MaxJobs; i++ {
		ev, ok := evals[i]
		if !ok {
			ev = evaluator.Default(i, names)
		}
		if !ev.IsRelevant && !ev.Fallback {
			continue
		}
		recs = append(recs, recommendation.FormatRecord(jobs[i], &ev, names))
	}
	recommendation.SortByScore(recs)
	total := len(evals)
	if len(recs) > max {
		recs = recs[:max]
	}
	log.Debug("candidates evaluated", map[string]interface{}{"step": "evaluate", "evaluated": total, "kept": len(recs)})

	saved, err := c.store.Persist(ctx, userID, recs)
	if err != nil {
		return CycleResult{Source: p.Source, TotalRecommendations: total, Err: err}
	}

	if c.opts.PruneStale {
		keep := make([]int64, 0, len(recs))
		for _, r := range recs {
			keep = append(keep, r.ID)
		}
		if n, err := c.store.PruneStale(ctx, userID, keep); err != nil {
			log.Warn("stale pruning failed", map[string]interface{}{"step": "prune", "err": err})
		} else if n > 0 {
			log.Debug("stale rows pruned", map[string]interface{}{"step": "prune", "deleted": n})
		}
	}

	return CycleResult{Success: true, SavedCount: saved, TotalRecommendations: total, Source: p.Source}
}

func (c *Calculator) fetchCandidates(ctx context.Context, names []string) ([]repository.JobListing, error) {
	if len(names) == 0 {
		return c.jobs.ListRecent(ctx, c.opts.CandidateLimit)
	}
	jobs, err := c.jobs.SearchByKeywords(ctx, search.CareerKeywords(names), c.opts.CandidateLimit)
	if err != nil {
		return nil, err
	}
	if len(jobs) > 0 {
		return jobs, nil
	}
	return c.jobs.ListRecent(ctx, c.opts.CandidateLimit)
}

// CalculateForUserBlocking runs a cycle on its own context, for callers that do not have one.
func (c *Calculator) CalculateForUserBlocking(userID int64, maxRecommendations int) CycleResult {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DetachedTimeout)
	defer cancel()
	return c.CalculateForUser(ctx, userID, maxRecommendations)
}

// CalculateDetached starts a cycle in the background and returns at once. It reports false when a
// detached cycle for the same user is already pending.
func (c *Calculator) CalculateDetached(userID int64, maxRecommendations int) bool {
	if _, busy := c.inflight.LoadOrStore(userID, struct{}{}); busy {
		return false
	}
	c.detached.Add(1)
	go func() {
		defer c.detached.Done()
		defer c.inflight.Delete(userID)
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("detached cycle panicked", map[string]interface{}{"user_id": userID, "panic": fmt.Sprint(r)})
			}
		}()
		c.CalculateForUserBlocking(userID, maxRecommendations)
	}()
	return true
}

// Wait blocks until every detached cycle has returned or ctx is done.
func (c *Calculator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.detached.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CalculateForAllUsers runs a cycle for every user with a career profile, batchSize users at a
// time. A failing user is recorded in PerUserErrors and the run goes on.
func (c *Calculator) CalculateForAllUsers(ctx context.Context, batchSize, maxRecommendations int) (RunSummary, error) {
	start := time.Now()
	if batchSize <= 0 {
		batchSize = c.opts.BatchSize
	}
	summary := RunSummary{PerUserErrors: map[int64]error{}}

	c.log.Info("all users run started", map[string]interface{}{"step": "all_users", "status": "started", "batch_size": batchSize})

	ids, err := repository.ListAllUserIDsWithProfile(ctx, c.users, 500)
	if err != nil {
		return summary, fmt.Errorf("list users: %w", err)
	}
	if len(ids) == 0 {
		summary.Duration = time.Since(start)
		return summary, nil
	}

	pool := NewWorkerPool(batchSize, len(ids))
	results := pool.Run(ctx)
	for _, uid := range ids {
		pool.Submit(func(ctx context.Context) Result {
			return Result{UserID: uid, Cycle: c.safeCycle(ctx, uid, maxRecommendations)}
		})
	}
	pool.Close()

	for r := range results {
		summary.ProcessedUsers++
		if r.Cycle.Err != nil {
			summary.PerUserErrors[r.UserID] = r.Cycle.Err
			continue
		}
		summary.SucceededUsers++
		summary.TotalRecommendations += r.Cycle.SavedCount
	}
	summary.Duration = time.Since(start)

	fields := map[string]interface{}{
		"step":      "all_users",
		"status":    "finished",
		"users":     len(ids),
		"processed": summary.ProcessedUsers,
		"failed":    len(summary.PerUserErrors),
		"saved":     summary.TotalRecommendations,
		"duration":  summary.Duration.String(),
	}
	if summary.ProcessedUsers < len(ids) {
		fields["skipped"] = len(ids) - summary.ProcessedUsers
	}
	c.log.Info("all users run finished", fields)
	return summary, nil
}

func (c *Calculator) safeCycle(ctx context.Context, userID int64, max int) (res CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			res = CycleResult{UserID: userID, Err: fmt.Errorf("cycle panicked: %v", r)}
		}
	}()
	return c.CalculateForUser(ctx, userID, max)
}
