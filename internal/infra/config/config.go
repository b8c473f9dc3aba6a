package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Firms     FirmsConfig     `yaml:"firms"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Model     ModelConfig     `yaml:"model"`
	Cache     CacheConfig     `yaml:"cache"`
	Events    EventsConfig    `yaml:"events"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Auth      AuthConfig      `yaml:"auth"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// FirmsConfig points the feed client at the NASA FIRMS area API.
type FirmsConfig struct {
	APIKey  string        `yaml:"apiKey"`
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// IngestConfig bounds the monitored region and tunes deduplication.
type IngestConfig struct {
	// Monitored region; detections outside are rejected at the boundary.
	LatMin float64 `yaml:"latMin"`
	LatMax float64 `yaml:"latMax"`
	LonMin float64 `yaml:"lonMin"`
	LonMax float64 `yaml:"lonMax"`

	DefaultSources []string      `yaml:"defaultSources"`
	DedupWindow    time.Duration `yaml:"dedupWindow"`
	// Spatial tolerance in kilometers, keyed per source family. MODIS pixels
	// are ~1km, VIIRS ~375m, so the tolerances differ per family.
	ToleranceKm   map[string]float64 `yaml:"toleranceKm"`
	MaxQueryLimit int                `yaml:"maxQueryLimit"`
	StatsCacheTTL time.Duration      `yaml:"statsCacheTtl"`
}

// ModelConfig tunes the regression forest and the prediction grid.
type ModelConfig struct {
	Trees           int     `yaml:"trees"`
	MaxDepth        int     `yaml:"maxDepth"`
	MinSamplesSplit int     `yaml:"minSamplesSplit"`
	MinSamplesLeaf  int     `yaml:"minSamplesLeaf"`
	Seed            int64   `yaml:"seed"`
	MinDetections   int     `yaml:"minDetections"`
	MinSamples      int     `yaml:"minSamples"`
	HistoryCellSize float64 `yaml:"historyCellSize"`
	TrailingWindow  int     `yaml:"trailingWindowDays"`
	HorizonDays     int     `yaml:"horizonDays"`
	DefaultGridSize float64 `yaml:"defaultGridSize"`
}

// CacheConfig contains connection information for the statistics cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	TTL     time.Duration `yaml:"ttl"`
}

// EventsConfig configures the optional detection event stream.
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ArtifactsConfig configures model snapshot storage (S3 compatible).
type ArtifactsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// SchedulerConfig enables cron driven refresh of the detection feed.
type SchedulerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	RefreshSpec string `yaml:"refreshSpec"`
	DayRange    int    `yaml:"dayRange"`
}

// AuthConfig guards the mutating operator endpoints.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("FIRMS_API_KEY"); v != "" {
		cfg.Firms.APIKey = v
	}
	if v := os.Getenv("FIRMS_BASE_URL"); v != "" {
		cfg.Firms.BaseURL = v
	}
	if v := os.Getenv("DEDUP_WINDOW"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.DedupWindow = parsed
		}
	}
	if v := os.Getenv("STATS_CACHE_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Ingest.StatsCacheTTL = parsed
		}
	}
	if v := os.Getenv("MODEL_TREES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Model.Trees = parsed
		}
	}
	if v := os.Getenv("MODEL_MIN_DETECTIONS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Model.MinDetections = parsed
		}
	}
	if v := os.Getenv("MODEL_MIN_SAMPLES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Model.MinSamples = parsed
		}
	}
	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("EVENTS_ENABLED"); v != "" {
		cfg.Events.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("EVENTS_BROKERS"); v != "" {
		cfg.Events.Brokers = splitAndTrim(v)
	}
	if v := os.Getenv("EVENTS_TOPIC"); v != "" {
		cfg.Events.Topic = v
	}
	if v := os.Getenv("ARTIFACTS_ENABLED"); v != "" {
		cfg.Artifacts.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("ARTIFACTS_ENDPOINT"); v != "" {
		cfg.Artifacts.Endpoint = v
	}
	if v := os.Getenv("ARTIFACTS_ACCESS_KEY"); v != "" {
		cfg.Artifacts.AccessKey = v
	}
	if v := os.Getenv("ARTIFACTS_SECRET_KEY"); v != "" {
		cfg.Artifacts.SecretKey = v
	}
	if v := os.Getenv("ARTIFACTS_BUCKET"); v != "" {
		cfg.Artifacts.Bucket = v
	}
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		cfg.Scheduler.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SCHEDULER_REFRESH_SPEC"); v != "" {
		cfg.Scheduler.RefreshSpec = v
	}
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if clean := strings.TrimSpace(p); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             30,
			},
		},
		Postgres: PostgresConfig{
			MaxConns: 4,
			MinConns: 0,
		},
		Firms: FirmsConfig{
			BaseURL: "https://firms.modaps.eosdis.nasa.gov/api",
			Timeout: 30 * time.Second,
		},
		Ingest: IngestConfig{
			LatMin:         15,
			LatMax:         35,
			LonMin:         70,
			LonMax:         95,
			DefaultSources: []string{"MODIS_C6_1", "VIIRS_SNPP_C2"},
			DedupWindow:    2 * time.Hour,
			ToleranceKm: map[string]float64{
				"MODIS":         1.0,
				"VIIRS":         0.375,
				"USER_REPORTED": 1.0,
			},
			MaxQueryLimit: 5000,
			StatsCacheTTL: 10 * time.Minute,
		},
		Model: ModelConfig{
			Trees:           100,
			MaxDepth:        10,
			MinSamplesSplit: 5,
			MinSamplesLeaf:  2,
			Seed:            42,
			MinDetections:   100,
			MinSamples:      360,
			HistoryCellSize: 0.1,
			TrailingWindow:  90,
			HorizonDays:     7,
			DefaultGridSize: 0.2,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     10 * time.Minute,
		},
		Events: EventsConfig{
			Enabled: false,
			Topic:   "firesight.detections",
		},
		Artifacts: ArtifactsConfig{
			Enabled: false,
			Bucket:  "firesight-models",
		},
		Scheduler: SchedulerConfig{
			Enabled:     false,
			RefreshSpec: "0 */3 * * *",
			DayRange:    1,
		},
		Auth: AuthConfig{
			Enabled: false,
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.Ingest.LatMin >= c.Ingest.LatMax {
		return errors.New("ingest latitude bounds are inverted")
	}
	if c.Ingest.LonMin >= c.Ingest.LonMax {
		return errors.New("ingest longitude bounds are inverted")
	}
	if c.Ingest.DedupWindow <= 0 {
		return errors.New("ingest.dedupWindow must be positive")
	}
	for family, km := range c.Ingest.ToleranceKm {
		if km <= 0 {
			return fmt.Errorf("ingest.toleranceKm.%s must be positive", family)
		}
	}
	if c.Ingest.MaxQueryLimit <= 0 {
		return errors.New("ingest.maxQueryLimit must be positive")
	}
	if c.Model.Trees <= 0 {
		return errors.New("model.trees must be positive")
	}
	if c.Model.MaxDepth <= 0 {
		return errors.New("model.maxDepth must be positive")
	}
	if c.Model.MinSamplesLeaf <= 0 || c.Model.MinSamplesSplit <= 1 {
		return errors.New("model tree split parameters must be positive")
	}
	if c.Model.MinDetections <= 0 || c.Model.MinSamples <= 0 {
		return errors.New("model training thresholds must be positive")
	}
	if c.Model.HistoryCellSize <= 0 || c.Model.DefaultGridSize <= 0 {
		return errors.New("model grid sizes must be positive")
	}
	if c.Model.HorizonDays <= 0 || c.Model.TrailingWindow <= 0 {
		return errors.New("model windows must be positive")
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Addr) == "" {
		return errors.New("cache.addr cannot be empty when the cache is enabled")
	}
	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		return errors.New("events.brokers cannot be empty when events are enabled")
	}
	if c.Artifacts.Enabled {
		if c.Artifacts.Endpoint == "" || c.Artifacts.Bucket == "" {
			return errors.New("artifacts.endpoint and artifacts.bucket are required when enabled")
		}
	}
	if c.Scheduler.Enabled && strings.TrimSpace(c.Scheduler.RefreshSpec) == "" {
		return errors.New("scheduler.refreshSpec cannot be empty when the scheduler is enabled")
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth.secret cannot be empty when auth is enabled")
	}
	return nil
}
