package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dukerupert/showtrack/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SHOWTRACK_ADDR", "SHOWTRACK_BASE_URL", "SHOWTRACK_DB_PATH",
		"SHOWTRACK_TMDB_API_KEY", "SHOWTRACK_TMDB_REGION", "SHOWTRACK_POSTMARK_TOKEN",
		"SHOWTRACK_EMAIL_FROM", "SHOWTRACK_TIMEZONE", "SHOWTRACK_LOG_LEVEL",
		"SHOWTRACK_LOG_FORMAT", "SHOWTRACK_RECONCILE_INTERVAL", "SHOWTRACK_RECONCILE_WORKERS",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "showtrack.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, exists, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Error("expected exists=false")
	}
	def := config.Default()
	if cfg.Server.Addr != def.Server.Addr {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, def.Server.Addr)
	}
	if cfg.Reconcile.Interval.Duration != 6*time.Hour {
		t.Errorf("interval = %v", cfg.Reconcile.Interval)
	}
	if cfg.Database.LockPath != "showtrack.db.lock" {
		t.Errorf("lock path = %q", cfg.Database.LockPath)
	}
	if cfg.EmailEnabled() {
		t.Error("email should be disabled without a token")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server]
addr = ":9000"

[tmdb]
api_key = "abc"
region = "gb"
fetch_timeout = "3s"

[reconcile]
interval = "30m"
workers = 8

[reminders]
weekly_day = "Friday"
timezone = "Europe/London"
`)
	cfg, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Error("expected exists=true")
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.TMDB.Region != "GB" {
		t.Errorf("region = %q, want GB", cfg.TMDB.Region)
	}
	if cfg.TMDB.FetchTimeout.Duration != 3*time.Second {
		t.Errorf("fetch timeout = %v", cfg.TMDB.FetchTimeout)
	}
	if cfg.Reconcile.Interval.Duration != 30*time.Minute || cfg.Reconcile.Workers != 8 {
		t.Errorf("reconcile = %+v", cfg.Reconcile)
	}
	if cfg.Weekday() != time.Friday {
		t.Errorf("weekday = %v", cfg.Weekday())
	}
	if cfg.Location().String() != "Europe/London" {
		t.Errorf("location = %v", cfg.Location())
	}
	// Untouched sections keep their defaults.
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[server]\naddr = \":9000\"\n")
	t.Setenv("SHOWTRACK_ADDR", ":7000")
	t.Setenv("SHOWTRACK_RECONCILE_WORKERS", "2")
	t.Setenv("SHOWTRACK_POSTMARK_TOKEN", "pm-token")
	t.Setenv("SHOWTRACK_EMAIL_FROM", "alerts@example.com")

	cfg, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("addr = %q, want :7000", cfg.Server.Addr)
	}
	if cfg.Reconcile.Workers != 2 {
		t.Errorf("workers = %d", cfg.Reconcile.Workers)
	}
	if !cfg.EmailEnabled() {
		t.Error("expected email enabled")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{"bad level", "[logging]\nlevel = \"loud\"\n", nil, "Level"},
		{"bad hour", "[reminders]\ndaily_hour = 24\n", nil, "DailyHour"},
		{"bad timezone", "[reminders]\ntimezone = \"Mars/Olympus\"\n", nil, "timezone"},
		{"bad duration", "[reconcile]\ninterval = \"soon\"\n", nil, "parse config"},
		{"zero workers", "[reconcile]\nworkers = 0\n", nil, "Workers"},
		{"token without sender", "", map[string]string{"SHOWTRACK_POSTMARK_TOKEN": "x"}, "email.from"},
		{"bad env int", "", map[string]string{"SHOWTRACK_RECONCILE_WORKERS": "many"}, "SHOWTRACK_RECONCILE_WORKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, _, err := config.Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestEncodeMasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.TMDB.APIKey = "secret-key"
	cfg.Email.PostmarkToken = "secret-token"
	cfg.Backup.SecretKey = "secret-s3"
	cfg.Backup.Passphrase = "secret-passphrase"

	b, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, planted := range []string{"secret-key", "secret-token", "secret-s3", "secret-passphrase"} {
		if strings.Contains(string(b), planted) {
			t.Errorf("encoded config leaks %q:\n%s", planted, b)
		}
	}
	if !strings.Contains(string(b), "********") {
		t.Errorf("encoded config has no masked values:\n%s", b)
	}

	var decoded config.Config
	if err := toml.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("decode encoded config: %v", err)
	}
	if decoded.Reconcile.Interval.Duration != 6*time.Hour {
		t.Errorf("interval round trip = %v", decoded.Reconcile.Interval)
	}
	if cfg.TMDB.APIKey != "secret-key" {
		t.Error("Encode must not mutate the receiver")
	}
}

func TestLoadBackup(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[backup]
endpoint = "https://s3.example.com"
bucket = "showtrack"
access_key = "AKID"
retention = "168h"
`)
	t.Setenv("SHOWTRACK_BACKUP_SECRET_KEY", "s3-secret")
	t.Setenv("SHOWTRACK_BACKUP_PASSPHRASE", "a long passphrase")

	cfg, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.BackupEnabled() {
		t.Error("expected backup enabled")
	}
	if cfg.Backup.Passphrase != "a long passphrase" {
		t.Errorf("passphrase = %q", cfg.Backup.Passphrase)
	}
	if cfg.Backup.Retention.Duration != 7*24*time.Hour {
		t.Errorf("retention = %v", cfg.Backup.Retention)
	}
	if cfg.Backup.Region != "us-east-1" {
		t.Errorf("region default = %q", cfg.Backup.Region)
	}
}
