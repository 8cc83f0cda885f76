package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App            AppConfig            `mapstructure:"app"`
	Log            LogConfig            `mapstructure:"log"`
	Database       DatabaseConfig       `mapstructure:"db"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Lock           LockConfig           `mapstructure:"lock"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Scheduler      SchedulerConfig      `mapstructure:"scheduler"`
	Scraper        ScraperConfig        `mapstructure:"scraper"`
	Gemini         GeminiConfig         `mapstructure:"gemini"`
	Scoring        ScoringConfig        `mapstructure:"scoring"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	Internal       InternalConfig       `mapstructure:"internal"`
}

type AppConfig struct {
	AppName     string `mapstructure:"name"`
	Environment string `mapstructure:"env"`
	HTTPPort    string `mapstructure:"http_port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	DBHost     string `mapstructure:"host"`
	DBPort     string `mapstructure:"port"`
	DBName     string `mapstructure:"name"`
	DBUser     string `mapstructure:"user"`
	DBPassword string `mapstructure:"password"`
	DBSSLMode  string `mapstructure:"ssl_mode"`

	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"`
	PoolMaxConns          int32         `mapstructure:"pool_max_conns"`
	PoolMinConns          int32         `mapstructure:"pool_min_conns"`
	PoolMaxConnLifetime   time.Duration `mapstructure:"pool_max_conn_lifetime"`
	PoolMaxConnIdleTime   time.Duration `mapstructure:"pool_max_conn_idle_time"`
	PoolHealthCheckPeriod time.Duration `mapstructure:"pool_health_check_period"`
}

// RedisConfig holds the lock-store connection parameters. URL wins over Addr when both are set.
type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	URL         string        `mapstructure:"url"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type LockConfig struct {
	Mode         string        `mapstructure:"mode"`
	Lease        time.Duration `mapstructure:"lease"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Renew        bool          `mapstructure:"renew"`
}

type RecommendationConfig struct {
	BatchSize      int  `mapstructure:"batch_size"`
	MaxPerUser     int  `mapstructure:"max_per_user"`
	CandidateLimit int  `mapstructure:"candidate_limit"`
	PruneStale     bool `mapstructure:"prune_stale"`
	ComputeOnMiss  bool `mapstructure:"compute_on_miss"`
}

type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Cron         string        `mapstructure:"cron"`
	Sources      []string      `mapstructure:"sources"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	RefreshQuery string        `mapstructure:"refresh_query"`
	RunOnStart   bool          `mapstructure:"run_on_start"`
}

type ScraperConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type ScoringConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type JWTConfig struct {
	AccessSecret    string        `mapstructure:"access_secret"`
	AccessExpiresIn time.Duration `mapstructure:"access_expires_in"`
}

type InternalConfig struct {
	APIToken string `mapstructure:"api_token"`
}

var (
	errMissingRequiredEnv = errors.New("missing required environment variables")
	errInvalidConfig      = errors.New("invalid configuration")
)

// Load reads .env (if present) and the process environment. Every key has a default so that
// AutomaticEnv can resolve it during Unmarshal.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	_ = v.BindEnv("app.http_port", "HTTP_PORT", "APP_HTTP_PORT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "")
	v.SetDefault("app.env", "")
	v.SetDefault("app.http_port", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.name", "")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.ssl_mode", "disable")
	v.SetDefault("db.connect_timeout", 5*time.Second)
	v.SetDefault("db.pool_max_conns", 10)
	v.SetDefault("db.pool_min_conns", 0)
	v.SetDefault("db.pool_max_conn_lifetime", time.Hour)
	v.SetDefault("db.pool_max_conn_idle_time", 30*time.Minute)
	v.SetDefault("db.pool_health_check_period", time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 2*time.Second)

	v.SetDefault("lock.mode", "strict")
	v.SetDefault("lock.lease", 5*time.Minute)
	v.SetDefault("lock.max_wait", 10*time.Second)
	v.SetDefault("lock.poll_interval", 500*time.Millisecond)
	v.SetDefault("lock.renew", true)

	v.SetDefault("recommendation.batch_size", 5)
	v.SetDefault("recommendation.max_per_user", 10)
	v.SetDefault("recommendation.candidate_limit", 30)
	v.SetDefault("recommendation.prune_stale", false)
	v.SetDefault("recommendation.compute_on_miss", true)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron", "0 3 * * *")
	v.SetDefault("scheduler.sources", []string{"jobstreet", "glints", "devto"})
	v.SetDefault("scheduler.cooldown", 30*time.Second)
	v.SetDefault("scheduler.refresh_query", "")
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("scraper.base_url", "")
	v.SetDefault("scraper.timeout", 10*time.Second)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash")

	v.SetDefault("scoring.timeout", 60*time.Second)

	v.SetDefault("jwt.access_secret", "")
	v.SetDefault("jwt.access_expires_in", 24*time.Hour)

	v.SetDefault("internal.api_token", "")
}

func normalize(cfg *Config) {
	cfg.App.AppName = strings.TrimSpace(cfg.App.AppName)
	cfg.App.Environment = strings.TrimSpace(cfg.App.Environment)
	cfg.App.HTTPPort = strings.TrimSpace(cfg.App.HTTPPort)
	cfg.Lock.Mode = strings.ToLower(strings.TrimSpace(cfg.Lock.Mode))

	sources := make([]string, 0, len(cfg.Scheduler.Sources))
	for _, s := range cfg.Scheduler.Sources {
		s = strings.TrimSpace(s)
		if s != "" {
			sources = append(sources, s)
		}
	}
	cfg.Scheduler.Sources = sources
}

func validate(cfg Config) error {
	var missing []string
	if cfg.App.AppName == "" {
		missing = append(missing, "APP_NAME")
	}
	if cfg.App.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if cfg.App.HTTPPort == "" {
		missing = append(missing, "HTTP_PORT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}

	var invalid []string
	switch cfg.Lock.Mode {
	case "strict", "best-effort":
	default:
		invalid = append(invalid, "LOCK_MODE")
	}
	if cfg.Lock.Lease <= 0 {
		invalid = append(invalid, "LOCK_LEASE")
	}
	if cfg.Lock.MaxWait <= 0 {
		invalid = append(invalid, "LOCK_MAX_WAIT")
	}
	if cfg.Lock.PollInterval <= 0 {
		invalid = append(invalid, "LOCK_POLL_INTERVAL")
	}
	if cfg.Recommendation.BatchSize <= 0 {
		invalid = append(invalid, "RECOMMENDATION_BATCH_SIZE")
	}
	if cfg.Recommendation.MaxPerUser <= 0 {
		invalid = append(invalid, "RECOMMENDATION_MAX_PER_USER")
	}
	if cfg.Recommendation.CandidateLimit <= 0 {
		invalid = append(invalid, "RECOMMENDATION_CANDIDATE_LIMIT")
	}
	if cfg.Scheduler.Enabled && strings.TrimSpace(cfg.Scheduler.Cron) == "" {
		invalid = append(invalid, "SCHEDULER_CRON")
	}
	if cfg.Scheduler.Cooldown < 0 {
		invalid = append(invalid, "SCHEDULER_COOLDOWN")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: %s", errInvalidConfig, strings.Join(invalid, ", "))
	}
	return nil
}
