// Package config loads the kiosk ledger configuration from environment
// variables and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/service/account"
)

// StoreKind selects the storage backend.
type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreSQLite   StoreKind = "sqlite"
	StorePostgres StoreKind = "postgres"
)

// DefaultKafkaTopic receives group_committed events.
const DefaultKafkaTopic = "kiosk.group_committed"

// Config represents the application configuration.
type Config struct {
	HTTPAddr    string
	Store       StoreKind
	DatabaseURL string
	SQLitePath  string
	Currency    string
	// TimeZone is an IANA name; empty means the local time zone.
	TimeZone  string
	ChartFile string
	Chart     Chart
	Seed      bool
	Auth      AuthConfig
	Kafka     KafkaConfig
	Log       LogConfig
}

// AuthConfig enables bearer auth when Secret is set.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// KafkaConfig enables event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type LogConfig struct {
	Level  string
	Format string
}

// Chart is the chart of accounts to seed and the role layout over it.
type Chart struct {
	Accounts []account.ChartAccount `yaml:"accounts"`
	Bindings []account.Binding      `yaml:"bindings"`
}

// DefaultChart is the built-in kiosk chart with its default bindings.
func DefaultChart() Chart {
	return Chart{Accounts: account.DefaultChart(), Bindings: account.DefaultBindings()}
}

// Load loads configuration from environment variables.
// It loads .env from the current directory if present. An explicit envPath
// must exist.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		HTTPAddr:    getEnvOrDefault("KIOSK_HTTP_ADDR", ":8080"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:  strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		Currency:    strings.ToUpper(getEnvOrDefault("KIOSK_CURRENCY", ledger.DefaultCurrency)),
		TimeZone:    strings.TrimSpace(os.Getenv("KIOSK_TIMEZONE")),
		ChartFile:   strings.TrimSpace(os.Getenv("KIOSK_CHART_FILE")),
		Auth: AuthConfig{
			Secret:   strings.TrimSpace(os.Getenv("JWT_HS256_SECRET")),
			Issuer:   strings.TrimSpace(os.Getenv("JWT_ISSUER")),
			Audience: strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnvOrDefault("KAFKA_TOPIC", DefaultKafkaTopic),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
		},
	}

	switch kind := StoreKind(strings.ToLower(strings.TrimSpace(os.Getenv("KIOSK_STORE")))); {
	case kind != "":
		cfg.Store = kind
	case cfg.DatabaseURL != "":
		cfg.Store = StorePostgres
	case cfg.SQLitePath != "":
		cfg.Store = StoreSQLite
	default:
		cfg.Store = StoreMemory
	}

	seed, err := parseBoolEnv("KIOSK_SEED", cfg.Store == StoreMemory)
	if err != nil {
		return nil, err
	}
	cfg.Seed = seed

	cfg.Chart = DefaultChart()
	if cfg.ChartFile != "" {
		chart, err := LoadChart(cfg.ChartFile)
		if err != nil {
			return nil, err
		}
		cfg.Chart = chart
	}
	return cfg, nil
}

// LoadChart reads a YAML chart of accounts. Bindings default to the kiosk
// layout when the file declares none.
func LoadChart(path string) (Chart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Chart{}, fmt.Errorf("failed to read chart file: %w", err)
	}
	var chart Chart
	if err := yaml.Unmarshal(data, &chart); err != nil {
		return Chart{}, fmt.Errorf("failed to parse chart YAML: %w", err)
	}
	if len(chart.Bindings) == 0 {
		chart.Bindings = account.DefaultBindings()
	}
	return chart, nil
}

// Validate reports invalid settings and combinations.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			problems = append(problems, "KIOSK_STORE=sqlite requires SQLITE_PATH")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "KIOSK_STORE=postgres requires DATABASE_URL")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown KIOSK_STORE %q", c.Store))
	}
	if err := ledger.CheckCurrency(c.Currency); err != nil {
		problems = append(problems, fmt.Sprintf("KIOSK_CURRENCY: %v", err))
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("KIOSK_TIMEZONE: %v", err))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("unknown LOG_FORMAT %q", c.Log.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown LOG_LEVEL %q", c.Log.Level))
	}
	problems = append(problems, c.Chart.problems()...)

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location resolves TimeZone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TimeZone)
}

func (ch Chart) problems() []string {
	var out []string
	seen := map[string]bool{}
	for i, a := range ch.Accounts {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			out = append(out, fmt.Sprintf("chart account %d has no name", i))
			continue
		}
		if seen[name] {
			out = append(out, fmt.Sprintf("chart account %q is listed twice", name))
		}
		seen[name] = true
		if _, err := ledger.ParseCategory(string(a.Category)); err != nil {
			out = append(out, fmt.Sprintf("chart account %q: %v", name, err))
		}
	}
	for _, b := range ch.Bindings {
		if strings.TrimSpace(string(b.Role)) == "" {
			out = append(out, "chart binding without role")
		}
		if b.Fallback != "" {
			if _, err := ledger.ParseCategory(string(b.Fallback)); err != nil {
				out = append(out, fmt.Sprintf("binding %q: %v", b.Role, err))
			}
		}
	}
	return out
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean value for %s: %s", key, value)
	}
	return parsed, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
