package config

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func noConfigFile(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
}

func TestLoadDefaults(t *testing.T) {
	noConfigFile(t)
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DBPath != "./duat.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.HTTPAddr != "127.0.0.1:8000" {
		t.Fatalf("unexpected http addr default: %q", cfg.HTTPAddr)
	}
	if cfg.ExternalHTTPTimeoutSeconds != defaultExternalHTTPTimeoutSeconds {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if diff := cmp.Diff(DefaultKeywords, cfg.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
	if cfg.DefaultProductivity != 1.0 || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: productivity=%v level=%q", cfg.DefaultProductivity, cfg.LogLevel)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if cfg.SlackConfigured() {
		t.Fatal("slack should not be configured")
	}
	if cfg.Retention() != 0 {
		t.Fatalf("expected unlimited retention, got %s", cfg.Retention())
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
last_folder: "/data/reports"
db_path: "/tmp/yaml.db"
rescan_schedule: "0 7 * * 1-5"
watch_folder: true
keywords: ["CBM", "HLM"]
default_productivity: 2.5
retention_days: 30
timezone: "Asia/Hong_Kong"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("KEYWORDS", " CBM , PA work ,, ")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_CHANNEL_ID", "C123")
	t.Setenv("EXTERNAL_HTTP_TIMEOUT_SECONDS", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ReportFolder != "/data/reports" {
		t.Fatalf("expected report folder from last_folder, got %q", cfg.ReportFolder)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected db path from env override, got %q", cfg.DBPath)
	}
	if diff := cmp.Diff([]string{"CBM", "PA work"}, cfg.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
	if !cfg.WatchFolder || cfg.RescanSchedule != "0 7 * * 1-5" {
		t.Fatalf("unexpected schedule settings: watch=%v schedule=%q", cfg.WatchFolder, cfg.RescanSchedule)
	}
	if cfg.DefaultProductivity != 2.5 {
		t.Fatalf("expected productivity from yaml, got %v", cfg.DefaultProductivity)
	}
	if cfg.Retention() != 30*24*time.Hour {
		t.Fatalf("unexpected retention %s", cfg.Retention())
	}
	if !cfg.SlackConfigured() || cfg.ExternalHTTPTimeout() != 120*time.Second {
		t.Fatalf("unexpected slack settings %+v", cfg)
	}
	if cfg.Location.String() != "Asia/Hong_Kong" {
		t.Fatalf("unexpected location %v", cfg.Location)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"timezone":       {"TIMEZONE": "Mars/Colony"},
		"rescan_":        {"RESCAN_SCHEDULE": "every tuesday", "REPORT_FOLDER": "/r"},
		"log_level":      {"LOG_LEVEL": "chatty"},
		"RETENTION_DAYS": {"RETENTION_DAYS": "soon"},
		"external_http":  {"EXTERNAL_HTTP_TIMEOUT_SECONDS": "1"},
		"slack_bot":      {"SLACK_BOT_TOKEN": "xoxb-test"},
		"report_folder":  {"WATCH_FOLDER": "true"},
	}
	for want, env := range cases {
		t.Run(want, func(t *testing.T) {
			noConfigFile(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected Load to fail")
			}
			if !strings.Contains(err.Error(), want) {
				t.Fatalf("expected error mentioning %q, got %v", want, err)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("keywords: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parsing") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestEnvOverrideHelpers(t *testing.T) {
	s := "initial"
	t.Setenv("DUAT_TEST_STR", "value")
	envOverride(&s, "DUAT_TEST_STR")
	if s != "value" {
		t.Fatalf("envOverride failed, got %q", s)
	}

	i := 1
	t.Setenv("DUAT_TEST_INT", "42")
	if err := envOverrideInt(&i, "DUAT_TEST_INT"); err != nil || i != 42 {
		t.Fatalf("envOverrideInt failed, got %d, %v", i, err)
	}

	f := 0.1
	t.Setenv("DUAT_TEST_FLOAT", "0.75")
	if err := envOverrideFloat(&f, "DUAT_TEST_FLOAT"); err != nil || f != 0.75 {
		t.Fatalf("envOverrideFloat failed, got %f, %v", f, err)
	}

	b := false
	t.Setenv("DUAT_TEST_BOOL", "1")
	envOverrideBool(&b, "DUAT_TEST_BOOL")
	if !b {
		t.Fatalf("envOverrideBool failed, got %v", b)
	}

	e := "keep"
	t.Setenv("DUAT_TEST_EMPTY", "")
	envOverrideAllowEmpty(&e, "DUAT_TEST_EMPTY")
	if e != "" {
		t.Fatalf("envOverrideAllowEmpty failed, got %q", e)
	}
}

func TestMustLoadInvalidTimezoneFatal(t *testing.T) {
	if os.Getenv("TEST_INVALID_TZ_FATAL") == "1" {
		_ = os.Setenv("CONFIG_PATH", filepath.Join(os.TempDir(), "no-config.yaml"))
		_ = os.Setenv("TIMEZONE", "Mars/Colony")
		MustLoad()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMustLoadInvalidTimezoneFatal")
	cmd.Env = append(os.Environ(), "TEST_INVALID_TZ_FATAL=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with failure")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got: %v", err)
	}
}
