package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

// DefaultKeywords is the delivery job keyword list used when none is configured.
var DefaultKeywords = []string{"CBM", "CM", "PA work", "HLM", "Provide"}

type Config struct {
	ReportFolder string `yaml:"report_folder"`
	// Backward compatibility for the desktop app's key name.
	LastFolder string `yaml:"last_folder"`

	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
	HTTPAddr      string `yaml:"http_addr"`

	RescanSchedule string `yaml:"rescan_schedule"`
	WatchFolder    bool   `yaml:"watch_folder"`

	SlackBotToken              string `yaml:"slack_bot_token"`
	SlackChannelID             string `yaml:"slack_channel_id"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	Keywords            []string `yaml:"keywords"`
	DefaultProductivity float64  `yaml:"default_productivity"`

	Timezone string `yaml:"timezone"`
	LogLevel string `yaml:"log_level"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// MustLoad is Load for process startup: any error is fatal.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// Load reads config.yaml (or CONFIG_PATH), applies environment overrides and
// defaults, and validates the result. A missing file is not an error.
func Load() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	envOverride(&cfg.ReportFolder, "REPORT_FOLDER")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.HTTPAddr, "HTTP_ADDR")
	envOverrideAllowEmpty(&cfg.RescanSchedule, "RESCAN_SCHEDULE")
	envOverrideBool(&cfg.WatchFolder, "WATCH_FOLDER")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	if err := envOverrideInt(&cfg.RetentionDays, "RETENTION_DAYS"); err != nil {
		return cfg, err
	}
	if err := envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"); err != nil {
		return cfg, err
	}
	if err := envOverrideFloat(&cfg.DefaultProductivity, "DEFAULT_PRODUCTIVITY"); err != nil {
		return cfg, err
	}

	if kws := os.Getenv("KEYWORDS"); kws != "" {
		cfg.Keywords = nil
		for _, kw := range strings.Split(kws, ",") {
			kw = strings.TrimSpace(kw)
			if kw != "" {
				cfg.Keywords = append(cfg.Keywords, kw)
			}
		}
	}

	if cfg.ReportFolder == "" {
		cfg.ReportFolder = strings.TrimSpace(cfg.LastFolder)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./duat.db"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = "127.0.0.1:8000"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = append([]string(nil), DefaultKeywords...)
	}
	if cfg.DefaultProductivity == 0 {
		cfg.DefaultProductivity = 1.0
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.RescanSchedule != "" {
		if _, err := cron.ParseStandard(cfg.RescanSchedule); err != nil {
			return cfg, fmt.Errorf("invalid rescan_schedule '%s': %w", cfg.RescanSchedule, err)
		}
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, fmt.Errorf("invalid log_level '%s': %w", cfg.LogLevel, err)
	}
	if cfg.RetentionDays < 0 {
		return cfg, fmt.Errorf("invalid retention_days '%d': must be >= 0", cfg.RetentionDays)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		return cfg, fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.DefaultProductivity < 0 {
		return cfg, fmt.Errorf("invalid default_productivity '%f': must be >= 0", cfg.DefaultProductivity)
	}
	if (cfg.SlackBotToken == "") != (cfg.SlackChannelID == "") {
		return cfg, fmt.Errorf("slack_bot_token and slack_channel_id must be set together")
	}
	if (cfg.RescanSchedule != "" || cfg.WatchFolder) && cfg.ReportFolder == "" {
		return cfg, fmt.Errorf("report_folder is required when rescan_schedule or watch_folder is set")
	}

	return cfg, nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

// SlackConfigured reports whether scan summaries can be posted.
func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

// ExternalHTTPTimeout is the timeout for outbound API calls.
func (c Config) ExternalHTTPTimeout() time.Duration {
	return time.Duration(c.ExternalHTTPTimeoutSeconds) * time.Second
}

// Retention is how long stored scan runs are kept; 0 keeps them forever.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
