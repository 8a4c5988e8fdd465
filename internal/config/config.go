package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/clinicdash/clinic/internal/calendar"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	// devSessionSecret signs sessions when ENV=development and no secret is set.
	devSessionSecret = "development-only-session-secret"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	Store             string        `mapstructure:"STORE"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	DBLogLevel        string        `mapstructure:"DB_LOG_LEVEL"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	SessionSecret     string        `mapstructure:"SESSION_SECRET"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	SessionCookie     string        `mapstructure:"SESSION_COOKIE"`
	AdminEmail        string        `mapstructure:"ADMIN_EMAIL"`
	AdminName         string        `mapstructure:"ADMIN_NAME"`
	AdminPasswordHash string        `mapstructure:"ADMIN_PASSWORD_HASH"`
	CalendarWeekStart string        `mapstructure:"CALENDAR_WEEK_START"`
	CalendarFirstHour int           `mapstructure:"CALENDAR_FIRST_HOUR"`
	CalendarHours     int           `mapstructure:"CALENDAR_HOURS"`
	SeedDemoData      bool          `mapstructure:"SEED_DEMO_DATA"`
	RuntimeMetrics    bool          `mapstructure:"METRICS_RUNTIME"`
	WebhookURLs       []string      `mapstructure:"WEBHOOK_URLS"`
	WebhookSecret     string        `mapstructure:"WEBHOOK_SECRET"`
	WebhookEvents     []string      `mapstructure:"WEBHOOK_EVENTS"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_LOG_LEVEL", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "BODY_LIMIT",
	"REQUEST_TIMEOUT", "SESSION_SECRET", "SESSION_TTL", "SESSION_COOKIE", "ADMIN_EMAIL",
	"ADMIN_NAME", "ADMIN_PASSWORD_HASH", "CALENDAR_WEEK_START", "CALENDAR_FIRST_HOUR",
	"CALENDAR_HOURS", "SEED_DEMO_DATA", "METRICS_RUNTIME",
	"WEBHOOK_URLS", "WEBHOOK_SECRET", "WEBHOOK_EVENTS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE", StorePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("SESSION_COOKIE", "clinic_session")
	v.SetDefault("ADMIN_EMAIL", "admin@clinica.com")
	v.SetDefault("ADMIN_NAME", "Dr. Admin")
	v.SetDefault("CALENDAR_WEEK_START", "sunday")
	v.SetDefault("CALENDAR_FIRST_HOUR", 8)
	v.SetDefault("CALENDAR_HOURS", 12)
	v.SetDefault("SEED_DEMO_DATA", false)
	v.SetDefault("METRICS_RUNTIME", true)
	v.SetDefault("WEBHOOK_EVENTS", "*")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.WebhookURLs = splitList(cfg.WebhookURLs)
	cfg.WebhookEvents = splitList(cfg.WebhookEvents)
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	if cfg.SessionSecret == "" && cfg.IsDev() {
		cfg.SessionSecret = devSessionSecret
	}

	return cfg, nil
}

// splitList expands a single comma-separated env value and drops blanks.
func splitList(in []string) []string {
	if len(in) == 1 && strings.Contains(in[0], ",") {
		in = strings.Split(in[0], ",")
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesPostgres reports whether the entity store is PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.Store == StorePostgres
}

// CalendarConfig builds the calendar settings. Invalid values fall back to
// the calendar defaults.
func (c *Config) CalendarConfig() calendar.Config {
	cfg := calendar.DefaultConfig()
	if wd, err := ParseWeekday(c.CalendarWeekStart); err == nil {
		cfg.WeekStart = wd
	}
	if c.CalendarFirstHour > 0 {
		cfg.FirstHour = c.CalendarFirstHour
	}
	if c.CalendarHours > 0 {
		cfg.Hours = c.CalendarHours
	}
	return cfg
}

// ParseWeekday accepts an English weekday name, case-insensitive.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == s {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// Validate checks that the configuration is safe to run. PostgreSQL needs
// DATABASE_URL; production needs a real session secret and admin password.
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "test", "production":
	default:
		return fmt.Errorf("ENV must be \"development\", \"test\" or \"production\", got %q", c.Env)
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE is %q", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := ParseWeekday(c.CalendarWeekStart); err != nil {
		return fmt.Errorf("CALENDAR_WEEK_START: %w", err)
	}
	if c.CalendarFirstHour < 0 || c.CalendarHours < 0 || c.CalendarFirstHour+c.CalendarHours > 24 {
		return fmt.Errorf("CALENDAR_FIRST_HOUR + CALENDAR_HOURS must fit in a day, got %d + %d", c.CalendarFirstHour, c.CalendarHours)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	if len(c.WebhookURLs) > 0 && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_URLS is set")
	}

	if !c.IsDev() && len(c.SessionSecret) < 16 {
		return fmt.Errorf("SESSION_SECRET must be at least 16 bytes outside development")
	}
	if c.IsProduction() {
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 bytes in production")
		}
		if c.AdminPasswordHash == "" {
			return fmt.Errorf("ADMIN_PASSWORD_HASH is required in production; generate one with `clinic-server hash-password`")
		}
		if c.SeedDemoData {
			return fmt.Errorf("SEED_DEMO_DATA must be false in production")
		}
	}
	return nil
}
