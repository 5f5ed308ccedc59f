package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"ladderwatch/internal/constants"
	"ladderwatch/internal/domain"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	LadderAPIURL string
	LadderAPIKey string

	S3Bucket string
	S3Region string
	S3Prefix string

	DBPath         string
	DedupIndexPath string
	ServerPort     string
	LogLevel       string

	// earliest eligible match date; zero means no cutoff
	CutoffDate             time.Time
	MinConfidence          domain.Confidence
	PollInterval           time.Duration
	BatchSize              int
	LookbackDays           int
	MaxConcurrentRequests  int
	MaxRecordsPerPartition int
	RetentionDays          int
	CacheIDBudget          int
	AutoStart              bool
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		LadderAPIURL:   getEnv("LADDER_API_URL", "https://website-backend.w3champions.com"),
		LadderAPIKey:   getEnv("LADDER_API_KEY", ""),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Prefix:       getEnv("S3_PREFIX", "ladderwatch"),
		DBPath:         getEnv("DB_PATH", "roster.db"),
		DedupIndexPath: getEnv("DEDUP_INDEX_PATH", "data/dedup-index.json"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AutoStart:      getEnvBool("AUTO_START", true),
	}

	var err error
	if cfg.BatchSize, err = getEnvInt("BATCH_SIZE", constants.DefaultBatchSize); err != nil {
		return nil, err
	}
	if cfg.LookbackDays, err = getEnvInt("LOOKBACK_DAYS", constants.DefaultLookbackDays); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentRequests, err = getEnvInt("MAX_CONCURRENT_REQUESTS", constants.DefaultMaxConcurrentRequests); err != nil {
		return nil, err
	}
	if cfg.MaxRecordsPerPartition, err = getEnvInt("MAX_RECORDS_PER_PARTITION", constants.DefaultMaxRecordsPerPartition); err != nil {
		return nil, err
	}
	if cfg.RetentionDays, err = getEnvInt("DEDUP_RETENTION_DAYS", constants.DefaultRetentionDays); err != nil {
		return nil, err
	}
	if cfg.CacheIDBudget, err = getEnvInt("CACHE_ID_BUDGET", constants.DefaultCacheIDBudget); err != nil {
		return nil, err
	}

	pollSeconds, err := getEnvInt("POLL_INTERVAL_SECONDS", constants.DefaultPollIntervalSeconds)
	if err != nil {
		return nil, err
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	cfg.MinConfidence, err = domain.ParseConfidence(getEnv("MIN_CONFIDENCE", string(domain.ConfidenceMedium)))
	if err != nil {
		return nil, fmt.Errorf("MIN_CONFIDENCE: %w", err)
	}

	if raw := getEnv("CUTOFF_DATE", ""); raw != "" {
		cfg.CutoffDate, err = domain.ParseDateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("CUTOFF_DATE must be YYYY-MM-DD: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("ladder_api_url", cfg.LadderAPIURL).
		Str("s3_bucket", cfg.S3Bucket).
		Str("s3_prefix", cfg.S3Prefix).
		Str("db_path", cfg.DBPath).
		Str("dedup_index_path", cfg.DedupIndexPath).
		Str("server_port", cfg.ServerPort).
		Str("min_confidence", string(cfg.MinConfidence)).
		Dur("poll_interval", cfg.PollInterval).
		Int("lookback_days", cfg.LookbackDays).
		Int("retention_days", cfg.RetentionDays).
		Int("cache_id_budget", cfg.CacheIDBudget).
		Bool("auto_start", cfg.AutoStart).
		Msg("configuration loaded")

	return cfg, nil
}

func (c *Config) validate() error {
	if c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be at least 1")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("LOOKBACK_DAYS must be positive")
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be positive")
	}
	if c.MaxRecordsPerPartition <= 0 {
		return fmt.Errorf("MAX_RECORDS_PER_PARTITION must be positive")
	}
	if c.CacheIDBudget <= 0 {
		return fmt.Errorf("CACHE_ID_BUDGET must be positive")
	}
	// a retention window shorter than the lookback window would re-ingest
	// pruned dates as false new matches
	if c.RetentionDays < c.LookbackDays {
		return fmt.Errorf("DEDUP_RETENTION_DAYS (%d) must be >= LOOKBACK_DAYS (%d)", c.RetentionDays, c.LookbackDays)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

var Module = fx.Provide(Load)
