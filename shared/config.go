package shared

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds settings for the sync CLI and the API server.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Sync      SyncConfig      `yaml:"sync"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
	Server    ServerConfig    `yaml:"server"`

	// DataDir receives CSV snapshots and exports.
	DataDir string `yaml:"data_dir"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // duckdb or postgres
	Path   string `yaml:"path"`   // duckdb file
	URL    string `yaml:"url"`    // postgres connection string
}

// DSN returns the data source name for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == DriverPostgres {
		return d.URL
	}
	return d.Path
}

type APIConfig struct {
	BaseURL     string `yaml:"base_url"`
	CountryCode string `yaml:"country_code"`
	MaxRetries  int    `yaml:"max_retries"`
	// ChunkMonths splits long fetches into windows of this many months.
	ChunkMonths int `yaml:"chunk_months"`
	Concurrency int `yaml:"concurrency"`
}

type SyncConfig struct {
	HistoryStart string `yaml:"history_start"`
	LookbackDays int    `yaml:"lookback_days"`
	Snapshot     bool   `yaml:"snapshot"`
	Interval     string `yaml:"interval"`
}

// HistoryStartDate parses HistoryStart as a YYYY-MM-DD date.
func (s SyncConfig) HistoryStartDate() (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s.HistoryStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid history start %q: %w", s.HistoryStart, err)
	}
	return t, nil
}

// IntervalDuration parses Interval, falling back to 24h.
func (s SyncConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

type GeocodingConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverDuckDB,
			Path:   DefaultDatabasePath,
		},
		API: APIConfig{
			BaseURL:     "https://fdw.fews.net/api",
			CountryCode: "HT",
			MaxRetries:  3,
			ChunkMonths: 12,
			Concurrency: 3,
		},
		Sync: SyncConfig{
			HistoryStart: "2005-01-01",
			Interval:     "24h",
		},
		Server:  ServerConfig{Port: "8080"},
		DataDir: DefaultDataDir,
	}
}

// LoadConfig loads .env (if present), then the YAML file at path (if given),
// then applies environment overrides.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("FEWS_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.Driver = DriverPostgres
		cfg.Database.URL = v
	}
	if v := os.Getenv("FEWS_DB_PATH"); v != "" {
		cfg.Database.Driver = DriverDuckDB
		cfg.Database.Path = v
	}
	if v := os.Getenv("FEWS_API_URL"); v != "" {
		cfg.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("FEWS_COUNTRY"); v != "" {
		cfg.API.CountryCode = strings.ToUpper(v)
	}
	if v := os.Getenv("FEWS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FEWS_HISTORY_START"); v != "" {
		cfg.Sync.HistoryStart = v
	}
	if v, err := strconv.Atoi(os.Getenv("FEWS_LOOKBACK_DAYS")); err == nil {
		cfg.Sync.LookbackDays = v
	}
	if os.Getenv("USE_GEOCODING") == "true" {
		cfg.Geocoding.Enabled = true
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Geocoding.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverDuckDB:
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("postgres driver selected but no database url configured")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.API.BaseURL == "" {
		return errors.New("api base url is required")
	}
	if _, err := c.Sync.HistoryStartDate(); err != nil {
		return err
	}
	if c.Sync.LookbackDays < 0 {
		return fmt.Errorf("lookback days must not be negative, got %d", c.Sync.LookbackDays)
	}
	if c.Geocoding.Enabled && c.Geocoding.APIKey == "" {
		return errors.New("geocoding enabled but API_KEY is not set")
	}
	return nil
}
