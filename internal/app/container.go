package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"job-recommender/internal/config"
	"job-recommender/internal/database"
	dbpostgres "job-recommender/internal/database/postgres"
	"job-recommender/internal/evaluator"
	"job-recommender/internal/infrastructure/cache"
	"job-recommender/internal/infrastructure/scraper"
	"job-recommender/internal/llm"
	"job-recommender/internal/lock"
	"job-recommender/internal/logger"
	"job-recommender/internal/pipeline"
	"job-recommender/internal/pkg/jwt"
	"job-recommender/internal/profile"
	"job-recommender/internal/recommendation"
	"job-recommender/internal/repository"
	"job-recommender/internal/scheduler"
	"job-recommender/internal/usecase"
	"job-recommender/internal/ws"

	"github.com/redis/go-redis/v9"
)

// Container owns every long-lived service. Everything is built explicitly in NewContainer; there are no
// package-level singletons.
type Container struct {
	Config config.Config
	Log    logger.Logger

	DB    database.DB
	Redis *redis.Client

	Locker     lock.Locker
	Resolver   *profile.Resolver
	Scoring    llm.Client
	Evaluator  *evaluator.Evaluator
	Cache      *recommendation.Cache
	Hub        *ws.Hub
	Calculator *pipeline.Calculator
	Scheduler  *scheduler.Scheduler
	Usecase    *usecase.Recommendations
	JWT        *jwt.HMACService

	stopHub context.CancelFunc
}

func NewContainer(ctx context.Context, cfg config.Config, log logger.Logger) (*Container, error) {
	log = logger.OrNop(log)
	c := &Container{Config: cfg, Log: log}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := dbpostgres.Connect(connectCtx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c.DB = db

	rdb, err := cache.NewClient(cfg.Redis)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Redis = rdb

	c.Locker, err = lock.New(connectCtx, rdb, lock.Mode(cfg.Lock.Mode), lock.Options{
		Lease:        cfg.Lock.Lease,
		MaxWait:      cfg.Lock.MaxWait,
		PollInterval: cfg.Lock.PollInterval,
		Renew:        cfg.Lock.Renew,
	}, log.With(map[string]interface{}{"component": "lock"}))
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	careers := repository.NewPostgresCareerRepository(db)
	jobs := repository.NewPostgresJobListingRepository(db)
	users := repository.NewPostgresUserQueryRepository(db)
	recs := repository.NewPostgresRecommendationRepository(db)

	c.Resolver = profile.NewResolver(careers, log.With(map[string]interface{}{"component": "profile"}))

	c.Scoring = newScoringClient(ctx, cfg, log)
	c.Evaluator, err = evaluator.New(c.Scoring, log.With(map[string]interface{}{"component": "evaluator"}))
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	c.Cache = recommendation.NewCache(recs, jobs, c.Resolver, log.With(map[string]interface{}{"component": "cache"}))

	c.Hub = ws.NewHub(log.With(map[string]interface{}{"component": "ws"}))
	hubCtx, stopHub := context.WithCancel(context.Background())
	c.stopHub = stopHub
	go c.Hub.Run(hubCtx)

	c.Calculator = pipeline.NewCalculator(
		c.Locker,
		c.Resolver,
		jobs,
		users,
		c.Evaluator,
		c.Cache,
		c.Hub,
		pipeline.Options{
			MaxRecommendations: cfg.Recommendation.MaxPerUser,
			BatchSize:          cfg.Recommendation.BatchSize,
			CandidateLimit:     cfg.Recommendation.CandidateLimit,
			PruneStale:         cfg.Recommendation.PruneStale,
		},
		log,
	)

	var refresher scraper.RefreshClient
	if hc := scraper.NewHTTPClient(cfg.Scraper.BaseURL, cfg.Scraper.Timeout, log); hc != nil {
		refresher = hc
	}
	c.Scheduler = scheduler.New(c.Calculator, refresher, scheduler.Options{
		Spec:               cfg.Scheduler.Cron,
		Sources:            cfg.Scheduler.Sources,
		Cooldown:           cfg.Scheduler.Cooldown,
		RefreshQuery:       cfg.Scheduler.RefreshQuery,
		BatchSize:          cfg.Recommendation.BatchSize,
		MaxRecommendations: cfg.Recommendation.MaxPerUser,
		RunOnStart:         cfg.Scheduler.RunOnStart,
	}, log)

	c.Usecase = usecase.NewRecommendationUsecase(c.Cache, c.Calculator, cfg.Recommendation.ComputeOnMiss, log)
	c.JWT = jwt.NewHMACService(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiresIn)

	return c, nil
}

func newScoringClient(ctx context.Context, cfg config.Config, log logger.Logger) llm.Client {
	gc, err := llm.NewGeminiClient(ctx, llm.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.Scoring.Timeout,
	})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			log.Warn("scoring service not configured, every evaluation will use defaults", nil)
		} else {
			log.Error("scoring service client unavailable", map[string]interface{}{"err": err})
		}
		return llm.Unavailable{}
	}
	return gc
}

// Close releases resources in reverse construction order.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.stopHub != nil {
		c.stopHub()
	}
	if c.Scoring != nil {
		if err := c.Scoring.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
