package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Feed FeedSource

	SchemaSource  string
	SchemaMessage string

	PollInterval time.Duration `validate:"gt=0"`
	SimEnabled   bool
	SimInterval  time.Duration `validate:"gte=0"`
	SimSeed      uint64
	FetchTimeout time.Duration `validate:"gte=0"`

	HTTPAddr     string
	RateLimit    float64 `validate:"gte=0"`
	RateBurst    int     `validate:"gte=0"`
	MetricsAddr  string
	NoticeBuffer int `validate:"gt=0"`

	NATSURL         string `validate:"omitempty,url"`
	NATSPrefix      string
	LogNATSSubjects bool

	DatabaseURL   string
	ArchiveDBName string

	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=console json"`
	Location  *time.Location
}

const (
	DefaultTripUpdatesPath      = "trip_update.bin"
	DefaultVehiclePositionsPath = "vehicle_position.bin"
	DefaultAlertsPath           = "alerts.bin"
)

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Feed source: FEEDS_FILE + FEED_NAME, else FEED_* variables.
	if path := os.Getenv("FEEDS_FILE"); path != "" {
		file, err := LoadFeedsFile(path)
		if err != nil {
			return nil, err
		}
		fs, err := file.Select(os.Getenv("FEED_NAME"))
		if err != nil {
			return nil, err
		}
		cfg.Feed = fs
	} else {
		cfg.Feed = FeedSource{
			Name:             getenvDefault("FEED_NAME", "default"),
			BaseURL:          os.Getenv("FEED_BASE_URL"),
			TripUpdates:      os.Getenv("FEED_TRIP_UPDATES"),
			VehiclePositions: os.Getenv("FEED_VEHICLE_POSITIONS"),
			Alerts:           os.Getenv("FEED_ALERTS"),
			QuirkProfile:     os.Getenv("QUIRK_PROFILE"),
			Headers:          parseHeaders(os.Getenv("FEED_HEADERS")),
		}
	}
	cfg.Feed.applyDefaults()
	// QUIRK_PROFILE overrides the feed file.
	if v := os.Getenv("QUIRK_PROFILE"); v != "" {
		cfg.Feed.QuirkProfile = v
	}

	cfg.SchemaSource = getenvDefault("SCHEMA_SOURCE", "builtin")
	cfg.SchemaMessage = getenvDefault("SCHEMA_MESSAGE", "transit_realtime.FeedMessage")

	var err error
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SimInterval, err = durationEnv("SIM_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.SimEnabled, err = boolEnv("SIM_ENABLED", true); err != nil {
		return nil, err
	}
	if v := os.Getenv("SIM_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SIM_SEED: %q", v)
		}
		cfg.SimSeed = seed
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %q", v)
		}
		cfg.RateLimit = f
	} else {
		cfg.RateLimit = 20
	}
	if cfg.RateBurst, err = intEnv("RATE_LIMIT_BURST", 40); err != nil {
		return nil, err
	}
	if cfg.NoticeBuffer, err = intEnv("NOTICE_BUFFER", 50); err != nil {
		return nil, err
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Empty NATS_URL disables the broadcast sink.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "transit")
	if cfg.LogNATSSubjects, err = boolEnv("LOG_NATS_SUBJECTS", false); err != nil {
		return nil, err
	}

	// Empty DATABASE_URL disables the archive.
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	cfg.ArchiveDBName = os.Getenv("ARCHIVE_DB_NAME")

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "console"))

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the struct tags of the config and its feed source.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	// Plain integers are seconds.
	if sec, err := strconv.Atoi(v); err == nil {
		if sec < 0 {
			return 0, fmt.Errorf("invalid %s: %q", key, v)
		}
		return time.Duration(sec) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s: %q", key, v)
}

// parseHeaders reads "Key: value; Key2: value2".
func parseHeaders(s string) map[string]string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
