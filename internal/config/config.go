package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	DefaultReminderRepeatDays   = 7
	DefaultCheckIntervalSeconds = 60
	DefaultDataFile             = "data/maintbot_data.json"
)

type Config struct {
	Discord struct {
		Token    string `yaml:"token"`
		ClientID string `yaml:"client_id"`
	} `yaml:"discord"`

	Reminders struct {
		// RepeatDays seeds the global pending-reminder cadence on
		// first run; after that the persisted setting wins.
		RepeatDays           int `yaml:"repeat_days"`
		CheckIntervalSeconds int `yaml:"check_interval_seconds"`
		// DefaultChannelID is an optional fallback destination shown
		// in creation replies when a timer's channel cannot be
		// resolved for display.
		DefaultChannelID string `yaml:"default_channel_id"`
	} `yaml:"reminders"`

	Storage struct {
		DataFile string `yaml:"data_file"`
	} `yaml:"storage"`

	LogLevel string `yaml:"log_level"`
}

// Load reads config.yaml (if present), substitutes ${ENV} placeholders,
// applies environment variable overrides, and validates. Invalid numeric
// values fall back to defaults with a logged warning; only a missing bot
// token is fatal.
func Load(log *zap.Logger) (*Config, error) {
	cfg := &Config{}
	cfg.Reminders.RepeatDays = DefaultReminderRepeatDays
	cfg.Reminders.CheckIntervalSeconds = DefaultCheckIntervalSeconds
	cfg.Storage.DataFile = DefaultDataFile
	cfg.LogLevel = "info"

	data, err := os.ReadFile("config.yaml")
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info("no config.yaml found, using environment variables only")
	case err != nil:
		return nil, fmt.Errorf("error reading config file: %w", err)
	default:
		// Replace environment variables in the YAML content
		content := string(data)
		for _, env := range os.Environ() {
			pair := strings.SplitN(env, "=", 2)
			if len(pair) != 2 {
				continue
			}
			placeholder := "${" + pair[0] + "}"
			content = strings.ReplaceAll(content, placeholder, pair[1])
		}
		if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config: %w", err)
		}
	}

	// Environment variables override file values.
	if v := os.Getenv("DISCORD_BOT_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_CLIENT_ID"); v != "" {
		cfg.Discord.ClientID = v
	}
	if v := os.Getenv("DATA_FILE"); v != "" {
		cfg.Storage.DataFile = v
	}
	if v := os.Getenv("DEFAULT_CHANNEL_ID"); v != "" {
		cfg.Reminders.DefaultChannelID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	overrideInt(log, "REMINDER_REPEAT_DAYS", &cfg.Reminders.RepeatDays)
	overrideInt(log, "CHECK_INTERVAL_SECONDS", &cfg.Reminders.CheckIntervalSeconds)

	if cfg.Reminders.RepeatDays <= 0 {
		log.Warn("reminder repeat days must be positive, using default",
			zap.Int("value", cfg.Reminders.RepeatDays),
			zap.Int("default", DefaultReminderRepeatDays))
		cfg.Reminders.RepeatDays = DefaultReminderRepeatDays
	}
	if cfg.Reminders.CheckIntervalSeconds <= 0 {
		log.Warn("check interval must be positive, using default",
			zap.Int("value", cfg.Reminders.CheckIntervalSeconds),
			zap.Int("default", DefaultCheckIntervalSeconds))
		cfg.Reminders.CheckIntervalSeconds = DefaultCheckIntervalSeconds
	}
	if cfg.Storage.DataFile == "" {
		cfg.Storage.DataFile = DefaultDataFile
	}

	if cfg.Discord.Token == "" {
		return nil, errors.New("bot token is missing: set DISCORD_BOT_TOKEN or discord.token in config.yaml")
	}
	return cfg, nil
}

func overrideInt(log *zap.Logger, name string, dst *int) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn("invalid integer in environment, keeping current value",
			zap.String("var", name), zap.String("value", raw), zap.Int("current", *dst))
		return
	}
	*dst = v
}
