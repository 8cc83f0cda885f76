// Package scheduler periodically refreshes the listing catalog and then recomputes every user's
// recommendations.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"job-recommender/internal/infrastructure/scraper"
	"job-recommender/internal/logger"
	"job-recommender/internal/metrics"
	"job-recommender/internal/pipeline"

	"github.com/robfig/cron/v3"
)

var ErrRunInProgress = errors.New("recommendation run already in progress")

const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
	TriggerStart  = "startup"
)

type Calculator interface {
	CalculateForAllUsers(ctx context.Context, batchSize, maxRecommendations int) (pipeline.RunSummary, error)
}

type Options struct {
	Spec               string
	Sources            []string
	Cooldown           time.Duration
	RefreshQuery       string
	BatchSize          int
	MaxRecommendations int
	RunOnStart         bool
}

type SourceResult struct {
	Source string
	TaskID string
	Err    error
}

type Report struct {
	Trigger   string
	Refreshed []SourceResult
	Summary   pipeline.RunSummary
	Started   time.Time
	Finished  time.Time
}

// Scheduler wraps robfig/cron. Runs never overlap, whether started by cron or by hand.
type Scheduler struct {
	cron      *cron.Cron
	calc      Calculator
	refresher scraper.RefreshClient
	opts      Options
	log       logger.Logger

	running atomic.Bool
	wg      sync.WaitGroup
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds a scheduler. A nil refresher skips the refresh step.
func New(calc Calculator, refresher scraper.RefreshClient, opts Options, log logger.Logger) *Scheduler {
	log = logger.OrNop(log).With(map[string]interface{}{"component": "scheduler"})
	cl := cronLogger{log: log}
	if opts.Spec == "" {
		opts.Spec = "0 3 * * *"
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		calc:      calc,
		refresher: refresher,
		opts:      opts,
		log:       log,
		sleep:     sleepCtx,
	}
}

// Start registers the cron entry and starts the cron loop. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.opts.Spec, func() {
		if _, err := s.run(ctx, TriggerCron); err != nil {
			s.log.Warn("scheduled run did not complete", map[string]interface{}{"err": err})
		}
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("scheduler started", map[string]interface{}{"spec": s.opts.Spec, "sources": s.opts.Sources})

	if s.opts.RunOnStart {
		if err := s.trigger(ctx, TriggerStart); err != nil {
			s.log.Warn("startup run skipped", map[string]interface{}{"err": err})
		}
	}
	return nil
}

// Stop stops the cron loop and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop().Done()
	done := make(chan struct{})
	go func() {
		<-cronDone
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler stopped", nil)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs the refresh-then-recompute sequence synchronously.
func (s *Scheduler) RunNow(ctx context.Context) (Report, error) {
	return s.run(ctx, TriggerManual)
}

// Trigger starts the sequence in the background and returns at once. ctx only bounds the run itself
// when it carries a deadline; cancellation of a request context does not stop it.
func (s *Scheduler) Trigger(ctx context.Context) error {
	return s.trigger(context.WithoutCancel(ctx), TriggerManual)
}

func (s *Scheduler) trigger(ctx context.Context, trigger string) error {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SchedulerRuns.WithLabelValues(trigger, "skipped").Inc()
		return ErrRunInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		if _, err := s.sequence(ctx, trigger); err != nil {
			s.log.Warn("triggered run did not complete", map[string]interface{}{"trigger": trigger, "err": err})
		}
	}()
	return nil
}

func (s *Scheduler) Running() bool { return s.running.Load() }

func (s *Scheduler) run(ctx context.Context, trigger string) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SchedulerRuns.WithLabelValues(trigger, "skipped").Inc()
		return Report{Trigger: trigger}, ErrRunInProgress
	}
	defer s.running.Store(false)
	s.wg.Add(1)
	defer s.wg.Done()
	return s.sequence(ctx, trigger)
}

// sequence refreshes every source one after another with the cooldown in between, then recomputes.
func (s *Scheduler) sequence(ctx context.Context, trigger string) (rep Report, err error) {
	rep = Report{Trigger: trigger, Started: time.Now()}
	log := s.log.With(map[string]interface{}{"trigger": trigger})
	log.Info("run started", map[string]interface{}{"step": "run", "status": "started"})

	defer func() {
		rep.Finished = time.Now()
		result := "success"
		if err != nil {
			result = "failed"
		}
		metrics.SchedulerRuns.WithLabelValues(trigger, result).Inc()
		log.Info("run finished", map[string]interface{}{
			"step":      "run",
			"status":    "finished",
			"result":    result,
			"processed": rep.Summary.ProcessedUsers,
			"saved":     rep.Summary.TotalRecommendations,
			"failed":    len(rep.Summary.PerUserErrors),
			"duration":  rep.Finished.Sub(rep.Started).String(),
		})
	}()

	if s.refresher != nil {
		for i, src := range s.opts.Sources {
			if i > 0 && s.opts.Cooldown > 0 {
				if err := s.sleep(ctx, s.opts.Cooldown); err != nil {
					return rep, fmt.Errorf("refresh cooldown: %w", err)
				}
			}
			taskID, rerr := s.refresher.RefreshSource(ctx, src, s.opts.RefreshQuery)
			rep.Refreshed = append(rep.Refreshed, SourceResult{Source: src, TaskID: taskID, Err: rerr})
			if rerr != nil {
				log.Warn("catalog refresh failed", map[string]interface{}{"step": "refresh", "source": src, "err": rerr})
				continue
			}
			log.Info("catalog refresh requested", map[string]interface{}{"step": "refresh", "source": src, "task_id": taskID})
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}
	} else {
		log.Debug("catalog refresh disabled", map[string]interface{}{"step": "refresh"})
	}

	summary, err := s.calc.CalculateForAllUsers(ctx, s.opts.BatchSize, s.opts.MaxRecommendations)
	rep.Summary = summary
	if err != nil {
		return rep, fmt.Errorf("recompute: %w", err)
	}
	return rep, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: "+msg, kvFields(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields["err"] = err
	c.log.Error("cron: "+msg, fields)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

var _ cron.Logger = cronLogger{}
