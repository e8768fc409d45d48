// Package config loads showtrack settings. Built-in defaults are overlaid by
// an optional TOML file and then by SHOWTRACK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration.
type Config struct {
	Server    Server    `toml:"server"`
	Database  Database  `toml:"database"`
	TMDB      TMDB      `toml:"tmdb"`
	Email     Email     `toml:"email"`
	Reconcile Reconcile `toml:"reconcile"`
	Reminders Reminders `toml:"reminders"`
	Backup    Backup    `toml:"backup"`
	Logging   Logging   `toml:"logging"`
}

type Server struct {
	Addr      string  `toml:"addr" validate:"required"`
	BaseURL   string  `toml:"base_url" validate:"omitempty,url"`
	RateLimit float64 `toml:"rate_limit" validate:"gte=0"`
	RateBurst int     `toml:"rate_burst" validate:"gte=0"`
}

type Database struct {
	Path     string `toml:"path" validate:"required"`
	LockPath string `toml:"lock_path"`
}

type TMDB struct {
	APIKey       string   `toml:"api_key"`
	BaseURL      string   `toml:"base_url" validate:"required,url"`
	Language     string   `toml:"language" validate:"required"`
	Region       string   `toml:"region" validate:"required,len=2"`
	RateLimit    float64  `toml:"rate_limit" validate:"gte=0"`
	FetchTimeout Duration `toml:"fetch_timeout"`
}

type Email struct {
	PostmarkToken string   `toml:"postmark_token"`
	From          string   `toml:"from" validate:"omitempty,email"`
	ReplyTo       string   `toml:"reply_to" validate:"omitempty,email"`
	Timeout       Duration `toml:"timeout"`
}

type Reconcile struct {
	Interval Duration `toml:"interval"`
	Workers  int      `toml:"workers" validate:"min=1,max=64"`
}

type Reminders struct {
	CheckInterval Duration `toml:"check_interval"`
	DailyHour     int      `toml:"daily_hour" validate:"min=0,max=23"`
	WeeklyDay     string   `toml:"weekly_day" validate:"oneof=sunday monday tuesday wednesday thursday friday saturday"`
	WeeklyHour    int      `toml:"weekly_hour" validate:"min=0,max=23"`
	Timezone      string   `toml:"timezone" validate:"required"`
	Retention     Duration `toml:"retention"`
}

// Backup configures encrypted database snapshots in S3-compatible storage.
// The passphrase is only read from SHOWTRACK_BACKUP_PASSPHRASE.
type Backup struct {
	Endpoint   string   `toml:"endpoint" validate:"omitempty,url"`
	Bucket     string   `toml:"bucket"`
	Region     string   `toml:"region"`
	AccessKey  string   `toml:"access_key"`
	SecretKey  string   `toml:"secret_key"`
	Prefix     string   `toml:"prefix"`
	Retention  Duration `toml:"retention"`
	Passphrase string   `toml:"-"`
}

type Logging struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

// Duration decodes TOML strings such as "6h" or "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Server: Server{
			Addr:      ":8080",
			RateLimit: 10,
			RateBurst: 20,
		},
		Database: Database{
			Path: "showtrack.db",
		},
		TMDB: TMDB{
			BaseURL:      "https://api.themoviedb.org/3",
			Language:     "en-US",
			Region:       "US",
			RateLimit:    20,
			FetchTimeout: Duration{10 * time.Second},
		},
		Email: Email{
			Timeout: Duration{10 * time.Second},
		},
		Reconcile: Reconcile{
			Interval: Duration{6 * time.Hour},
			Workers:  4,
		},
		Reminders: Reminders{
			CheckInterval: Duration{time.Minute},
			DailyHour:     8,
			WeeklyDay:     "sunday",
			WeeklyHour:    18,
			Timezone:      "UTC",
			Retention:     Duration{30 * 24 * time.Hour},
		},
		Backup: Backup{
			Region:    "us-east-1",
			Prefix:    "showtrack",
			Retention: Duration{30 * 24 * time.Hour},
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (a missing file is not an error), applies environment
// overrides, and validates the result. The bool reports whether the file
// existed.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	exists := false
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, false, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			exists = true
			if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
				return nil, false, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, false, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, exists, nil
}

func (c *Config) normalize() {
	c.TMDB.Region = strings.ToUpper(strings.TrimSpace(c.TMDB.Region))
	c.Reminders.WeeklyDay = strings.ToLower(strings.TrimSpace(c.Reminders.WeeklyDay))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Database.LockPath == "" && c.Database.Path != ":memory:" {
		c.Database.LockPath = c.Database.Path + ".lock"
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Reminders.Timezone); err != nil {
		return fmt.Errorf("invalid config: reminders.timezone: %w", err)
	}
	if c.Email.PostmarkToken != "" && c.Email.From == "" {
		return errors.New("invalid config: email.from is required when email.postmark_token is set")
	}
	for name, d := range map[string]Duration{
		"tmdb.fetch_timeout":       c.TMDB.FetchTimeout,
		"email.timeout":            c.Email.Timeout,
		"reconcile.interval":       c.Reconcile.Interval,
		"reminders.check_interval": c.Reminders.CheckInterval,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("invalid config: %s must be positive", name)
		}
	}
	return nil
}

// Location returns the reminder timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reminders.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Weekday returns the configured weekly preview day.
func (c *Config) Weekday() time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), c.Reminders.WeeklyDay) {
			return d
		}
	}
	return time.Sunday
}

// EmailEnabled reports whether a Postmark token is configured.
func (c *Config) EmailEnabled() bool {
	return c.Email.PostmarkToken != ""
}

// BackupEnabled reports whether a bucket and credentials are configured.
func (c *Config) BackupEnabled() bool {
	return c.Backup.Bucket != "" && c.Backup.AccessKey != "" && c.Backup.SecretKey != ""
}

// Encode renders the config as TOML. Secrets are masked.
func (c Config) Encode() ([]byte, error) {
	if c.TMDB.APIKey != "" {
		c.TMDB.APIKey = "********"
	}
	if c.Email.PostmarkToken != "" {
		c.Email.PostmarkToken = "********"
	}
	if c.Backup.SecretKey != "" {
		c.Backup.SecretKey = "********"
	}
	b, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return b, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("SHOWTRACK_ADDR", &c.Server.Addr)
	str("SHOWTRACK_BASE_URL", &c.Server.BaseURL)
	str("SHOWTRACK_DB_PATH", &c.Database.Path)
	str("SHOWTRACK_TMDB_API_KEY", &c.TMDB.APIKey)
	str("SHOWTRACK_TMDB_REGION", &c.TMDB.Region)
	str("SHOWTRACK_POSTMARK_TOKEN", &c.Email.PostmarkToken)
	str("SHOWTRACK_EMAIL_FROM", &c.Email.From)
	str("SHOWTRACK_TIMEZONE", &c.Reminders.Timezone)
	str("SHOWTRACK_LOG_LEVEL", &c.Logging.Level)
	str("SHOWTRACK_LOG_FORMAT", &c.Logging.Format)
	str("SHOWTRACK_BACKUP_BUCKET", &c.Backup.Bucket)
	str("SHOWTRACK_BACKUP_ACCESS_KEY", &c.Backup.AccessKey)
	str("SHOWTRACK_BACKUP_SECRET_KEY", &c.Backup.SecretKey)
	str("SHOWTRACK_BACKUP_PASSPHRASE", &c.Backup.Passphrase)

	if v, ok := lookup("SHOWTRACK_RECONCILE_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SHOWTRACK_RECONCILE_INTERVAL: %w", err)
		}
		c.Reconcile.Interval = Duration{d}
	}
	if v, ok := lookup("SHOWTRACK_RECONCILE_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SHOWTRACK_RECONCILE_WORKERS: %w", err)
		}
		c.Reconcile.Workers = n
	}
	return nil
}
