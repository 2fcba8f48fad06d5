package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

type Config struct {
	StopTimesPath  string  `yaml:"stop_times_path" validate:"required_if=Source csv"`
	OutputPath     string  `yaml:"output_path" validate:"required"`
	NumValidations int     `yaml:"num_validations" validate:"gte=0"`
	ValidationDate string  `yaml:"validation_date" validate:"omitempty,datetime=2006-01-02"`
	Seed           *uint64 `yaml:"seed"`
	ProgressEvery  int     `yaml:"progress_every" validate:"gt=0"`
	TimePolicy     string  `yaml:"time_policy" validate:"oneof=skip abort zero"`

	Source      string `yaml:"source" validate:"oneof=csv postgres"`
	DatabaseURL string `yaml:"database_url" validate:"required_if=Source postgres"`
	City        string `yaml:"city"`

	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix" validate:"required_with=NATSURL"`
	LogNATSSubjects   bool   `yaml:"log_nats_subjects"`
	MetricsAddr       string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		StopTimesPath:     "./stop_times.txt",
		OutputPath:        "./validations.json",
		NumValidations:    1000000,
		ProgressEvery:     10000,
		TimePolicy:        "skip",
		Source:            SourceCSV,
		NATSSubjectPrefix: "validations",
	}
}

// Load builds a Config from defaults, the optional YAML file at path, then
// .env and the process environment. The result is not validated.
func Load(path string) (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("GENERATOR_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("STOP_TIMES_PATH"); v != "" {
		cfg.StopTimesPath = v
	}
	if v := os.Getenv("OUTPUT_PATH"); v != "" {
		cfg.OutputPath = v
	}
	if v := os.Getenv("NUM_VALIDATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid NUM_VALIDATIONS: %q", v)
		}
		cfg.NumValidations = n
	}
	if v := os.Getenv("VALIDATION_DATE"); v != "" {
		cfg.ValidationDate = strings.TrimSpace(v)
	}
	if v := os.Getenv("SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SEED: %q", v)
		}
		cfg.Seed = &seed
	}
	if v := os.Getenv("PROGRESS_EVERY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid PROGRESS_EVERY: %q", v)
		}
		cfg.ProgressEvery = n
	}
	if v := os.Getenv("TIME_PARSE_POLICY"); v != "" {
		cfg.TimePolicy = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("SCHEDULE_SOURCE"); v != "" {
		cfg.Source = strings.ToLower(strings.TrimSpace(v))
	}

	if dsn := databaseURLFromEnv(); dsn != "" {
		cfg.DatabaseURL = dsn
	}
	if city := firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME")); city != "" {
		cfg.City = city
	}

	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("NATS_SUBJECT_PREFIX"); v != "" {
		cfg.NATSSubjectPrefix = v
	}
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		cfg.LogNATSSubjects = parseBool(v)
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// databaseURLFromEnv prefers DATABASE_URL / PG_DSN, else builds from PG* vars
// when PGDATABASE or CITY is set.
func databaseURLFromEnv() string {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn
	}
	db := os.Getenv("PGDATABASE")
	// With CITY the base DB is the cluster's meta database.
	if db == "" && firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME")) != "" {
		db = "postgres"
	}
	if db == "" {
		return ""
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
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

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
