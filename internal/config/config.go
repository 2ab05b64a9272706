// Package config handles application configuration loading and validation using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Badges      []BadgeRule       `mapstructure:"badges"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Leaderboard LeaderboardConfig `mapstructure:"leaderboard"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// RedisConfig contains Redis cache connection settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ScoringConfig contains score type definitions, tier thresholds and the
// calendar settings used for streaks and daily caps.
type ScoringConfig struct {
	Timezone      string      `mapstructure:"timezone"`
	RetentionDays int         `mapstructure:"retention_days"`
	ScoreTypes    []ScoreType `mapstructure:"score_types"`
	Tiers         []Tier      `mapstructure:"tiers"`
}

// ScoreType defines the points and optional daily cap for one activity type.
type ScoreType struct {
	Type        string `mapstructure:"type"`
	Description string `mapstructure:"description"`
	Points      int    `mapstructure:"points"`
	DailyCap    int    `mapstructure:"daily_cap"` // 0 means uncapped
}

// Tier defines one named rank bracket with its minimum point threshold.
type Tier struct {
	Name      string `mapstructure:"name"`
	MinPoints int64  `mapstructure:"min_points"`
}

// BadgeRule defines a badge and the typed criterion that earns it.
type BadgeRule struct {
	Name         string `mapstructure:"name"`
	Description  string `mapstructure:"description"`
	Icon         string `mapstructure:"icon"`
	Criterion    string `mapstructure:"criterion"`     // "activity_count" or "streak_days"
	ActivityType string `mapstructure:"activity_type"` // required for activity_count
	Threshold    int    `mapstructure:"threshold"`
}

// SchedulerConfig contains rank recompute scheduling settings.
type SchedulerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	RecomputeSchedule string `mapstructure:"recompute_schedule"` // cron expression
	Timezone          string `mapstructure:"timezone"`
	BatchSize         int    `mapstructure:"batch_size"`
}

// LeaderboardConfig contains leaderboard read settings.
type LeaderboardConfig struct {
	DefaultLimit    int `mapstructure:"default_limit"`
	MaxLimit        int `mapstructure:"max_limit"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

// MetricsConfig contains Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables. A missing
// config file is not an error when no explicit path was given; the built-in
// defaults then apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/scoring-engine/")
	}

	setDefaults(v)

	// Explicit env bindings for 12-factor deployment
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	_ = v.BindEnv("database.redis.enabled", "REDIS_ENABLED")
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.recompute_schedule", "SCHEDULER_RECOMPUTE_SCHEDULE")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")
	_ = v.BindEnv("scheduler.batch_size", "SCHEDULER_BATCH_SIZE")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDomainDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)

	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("scoring.timezone", "UTC")
	v.SetDefault("scoring.retention_days", 90)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.recompute_schedule", "0 3 * * *")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.batch_size", 500)

	v.SetDefault("leaderboard.default_limit", 25)
	v.SetDefault("leaderboard.max_limit", 100)
	v.SetDefault("leaderboard.cache_ttl_seconds", 30)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
}

// applyDomainDefaults fills in the built-in score type, tier and badge tables
// when the config file does not declare its own.
func (c *Config) applyDomainDefaults() {
	if len(c.Scoring.ScoreTypes) == 0 {
		c.Scoring.ScoreTypes = DefaultScoreTypes()
	}
	if len(c.Scoring.Tiers) == 0 {
		c.Scoring.Tiers = DefaultTiers()
	}
	if len(c.Badges) == 0 {
		c.Badges = DefaultBadges()
	}
}

// DefaultScoreTypes returns the built-in score type table.
func DefaultScoreTypes() []ScoreType {
	return []ScoreType{
		{Type: "DAILY_LOGIN", Description: "Daily login bonus", Points: 10, DailyCap: 1},
		{Type: "RECEIPT_SCAN", Description: "Scanned a receipt", Points: 25, DailyCap: 10},
		{Type: "PRICE_REPORT", Description: "Reported a product price", Points: 15, DailyCap: 20},
		{Type: "REVIEW_WRITTEN", Description: "Wrote a product review", Points: 20},
		{Type: "REFERRAL", Description: "Referred a new user", Points: 100},
		{Type: "PROFILE_COMPLETED", Description: "Completed profile", Points: 50, DailyCap: 1},
	}
}

// DefaultTiers returns the built-in ascending tier threshold table.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "BRONZE", MinPoints: 0},
		{Name: "SILVER", MinPoints: 200},
		{Name: "GOLD", MinPoints: 1000},
		{Name: "PLATINUM", MinPoints: 5000},
		{Name: "DIAMOND", MinPoints: 20000},
	}
}

// DefaultBadges returns the built-in badge rule table.
func DefaultBadges() []BadgeRule {
	return []BadgeRule{
		{Name: "first_scan", Description: "Scanned your first receipt", Icon: "🧾", Criterion: "activity_count", ActivityType: "RECEIPT_SCAN", Threshold: 1},
		{Name: "scanner_50", Description: "Scanned 50 receipts", Icon: "📠", Criterion: "activity_count", ActivityType: "RECEIPT_SCAN", Threshold: 50},
		{Name: "price_watcher", Description: "Reported 25 prices", Icon: "🏷️", Criterion: "activity_count", ActivityType: "PRICE_REPORT", Threshold: 25},
		{Name: "critic", Description: "Wrote 10 reviews", Icon: "✍️", Criterion: "activity_count", ActivityType: "REVIEW_WRITTEN", Threshold: 10},
		{Name: "week_streak", Description: "Active 7 days in a row", Icon: "🔥", Criterion: "streak_days", Threshold: 7},
		{Name: "month_streak", Description: "Active 30 days in a row", Icon: "🌋", Criterion: "streak_days", Threshold: 30},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.Database.Redis.Enabled && c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required when redis is enabled")
	}
	if len(c.Scoring.ScoreTypes) == 0 {
		return fmt.Errorf("at least one score type must be configured")
	}
	if len(c.Scoring.Tiers) == 0 {
		return fmt.Errorf("at least one tier must be configured")
	}
	for i := 1; i < len(c.Scoring.Tiers); i++ {
		if c.Scoring.Tiers[i].MinPoints <= c.Scoring.Tiers[i-1].MinPoints {
			return fmt.Errorf("tier thresholds must be strictly ascending: %q <= %q",
				c.Scoring.Tiers[i].Name, c.Scoring.Tiers[i-1].Name)
		}
	}
	if c.Scoring.Tiers[0].MinPoints != 0 {
		return fmt.Errorf("lowest tier %q must start at 0 points", c.Scoring.Tiers[0].Name)
	}
	for _, b := range c.Badges {
		switch b.Criterion {
		case "activity_count":
			if b.ActivityType == "" {
				return fmt.Errorf("badge %q: activity_type is required for activity_count", b.Name)
			}
		case "streak_days":
		default:
			return fmt.Errorf("badge %q: unknown criterion %q", b.Name, b.Criterion)
		}
		if b.Threshold <= 0 {
			return fmt.Errorf("badge %q: threshold must be positive", b.Name)
		}
	}
	return nil
}

// ScoreType returns the score type config for an activity type, or nil.
func (c *ScoringConfig) ScoreType(activityType string) *ScoreType {
	for i := range c.ScoreTypes {
		if c.ScoreTypes[i].Type == activityType {
			return &c.ScoreTypes[i]
		}
	}
	return nil
}

// Location returns the reference timezone used for calendar-date math.
func (c *ScoringConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// GetLocation returns the scheduler timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
