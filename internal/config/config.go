package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. TRAILWX_SERVER_PORT.
const EnvPrefix = "TRAILWX"

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Providers ProvidersConfig
	Danger    DangerConfig
	Format    FormatConfig
	Engine    EngineConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	BearerToken     string
	RateLimit       int // requests per minute per IP
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	URL string
}

// CacheConfig holds forecast cache settings.
type CacheConfig struct {
	TTL time.Duration
}

// ProvidersConfig holds upstream provider settings.
type ProvidersConfig struct {
	Timeout             time.Duration
	UserAgent           string
	SupplementCountries []string
	// RatePerSecond and Burst limit calls to met.no and NWS.
	RatePerSecond float64
	Burst         int
}

// DangerConfig holds the danger trigger points.
type DangerConfig struct {
	GustKmh           float64
	PrecipMM          float64
	DailyPrecipMM     float64
	PrecipProbability float64
}

// FormatConfig holds SMS segment settings.
type FormatConfig struct {
	SegmentChars int
	MaxSegments  int
}

// EngineConfig holds request orchestration settings.
type EngineConfig struct {
	LookupTimeout    time.Duration
	RouteConcurrency int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.bearertoken", "")
	v.SetDefault("server.ratelimit", 60)
	v.SetDefault("server.readtimeout", 15*time.Second)
	v.SetDefault("server.writetimeout", 30*time.Second)
	v.SetDefault("server.shutdowntimeout", 30*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.maxconns", 0)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", 30*time.Minute)

	v.SetDefault("providers.timeout", 10*time.Second)
	v.SetDefault("providers.useragent", "")
	v.SetDefault("providers.supplementcountries", []string{"US", "NO", "SE", "DK", "FI", "IS"})
	v.SetDefault("providers.ratepersecond", 5.0)
	v.SetDefault("providers.burst", 5)

	v.SetDefault("danger.gustkmh", 60.0)
	v.SetDefault("danger.precipmm", 5.0)
	v.SetDefault("danger.dailyprecipmm", 25.0)
	v.SetDefault("danger.precipprobability", 90.0)

	v.SetDefault("format.segmentchars", 160)
	v.SetDefault("format.maxsegments", 4)

	v.SetDefault("engine.lookuptimeout", 5*time.Second)
	v.SetDefault("engine.routeconcurrency", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from an optional .env file, an optional config.yaml
// and TRAILWX_ environment variables, in increasing order of precedence.
// Extra search paths for config.yaml are tried before the defaults.
func Load(paths ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Providers.SupplementCountries = normalizeCountries(cfg.Providers.SupplementCountries)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.BearerToken == "" {
		errs = append(errs, errors.New("server.bearertoken is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required"))
	}
	if c.Format.SegmentChars < 40 {
		errs = append(errs, fmt.Errorf("format.segmentchars %d is too small", c.Format.SegmentChars))
	}
	if c.Format.MaxSegments < 1 {
		errs = append(errs, errors.New("format.maxsegments must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// normalizeCountries accepts both a YAML list and a comma-separated env value.
func normalizeCountries(in []string) []string {
	var out []string
	for _, item := range in {
		for _, c := range strings.Split(item, ",") {
			c = strings.ToUpper(strings.TrimSpace(c))
			if c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

// GetServerAddr returns the server address in the format ":port".
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// NewLogger creates a slog.Logger writing to stdout.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo creates a slog.Logger writing to w.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(c.Log.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
