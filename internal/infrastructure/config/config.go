package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	sharedConfig "github.com/orris-inc/ticketwatch/internal/shared/config"
	"github.com/orris-inc/ticketwatch/internal/shared/logger"
)

// Environment variables mirroring the lenient single-value overrides:
// a malformed value degrades to the safe default instead of failing startup.
const (
	envTrackerAllowlist = "TICKETWATCH_RELAY_TRACKER_ALLOWLIST"
	envUserMappingJSON  = "TICKETWATCH_SLACK_USER_MAPPING_JSON"
)

type Config struct {
	Server   sharedConfig.ServerConfig   `mapstructure:"server"`
	Database sharedConfig.DatabaseConfig `mapstructure:"database"`
	Logger   sharedConfig.LoggerConfig   `mapstructure:"logger"`
	Redmine  sharedConfig.RedmineConfig  `mapstructure:"redmine"`
	Slack    sharedConfig.SlackConfig    `mapstructure:"slack"`
	Relay    sharedConfig.RelayConfig    `mapstructure:"relay"`
}

// Load loads configuration from file and environment variables. The loaded
// value is returned to the caller and threaded through constructors; there
// is no package-global configuration state.
func Load(env string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")

	v.SetEnvPrefix("TICKETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Running from environment variables alone is supported.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyLenientOverrides(&config)
	applySafeFallbacks(&config)

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults (ops endpoint only)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	// Database defaults
	v.SetDefault("database.path", "ticketwatch.db")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	// Redmine defaults. Credentials default empty so the keys stay visible
	// to environment-variable binding; validation rejects them when unset.
	v.SetDefault("redmine.base_url", "")
	v.SetDefault("redmine.api_key", "")
	v.SetDefault("redmine.fetch_limit", 100)

	// Slack defaults
	v.SetDefault("slack.token", "")
	v.SetDefault("slack.channel", "")

	// Relay defaults
	v.SetDefault("relay.poll_interval", "60s")
	v.SetDefault("relay.completion_reaction", "white_check_mark")
	v.SetDefault("relay.deletion_reaction", "wastebasket")
	v.SetDefault("relay.follow_up.policy", "interval")
	v.SetDefault("relay.follow_up.interval", "6h")
}

// applyLenientOverrides reads the single-value environment overrides that
// predate structured configuration. Malformed values log a warning and
// leave the structured value untouched.
func applyLenientOverrides(config *Config) {
	if raw := os.Getenv(envTrackerAllowlist); raw != "" {
		ids, err := parseIntList(raw)
		if err != nil {
			logger.Warn("ignoring malformed tracker allowlist, relaying all trackers",
				"value", raw, "error", err)
			config.Relay.TrackerAllowlist = nil
		} else {
			config.Relay.TrackerAllowlist = ids
		}
	}

	if raw := os.Getenv(envUserMappingJSON); raw != "" {
		var mapping map[string]string
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			logger.Warn("ignoring malformed user mapping JSON, mentions disabled",
				"error", err)
		} else {
			config.Slack.UserMapping = mapping
		}
	}
}

// applySafeFallbacks coerces recoverable misconfiguration to safe defaults
// so startup never fails over an optional knob.
func applySafeFallbacks(config *Config) {
	switch config.Relay.FollowUp.Policy {
	case "interval", "once":
	default:
		logger.Warn("unknown follow-up policy, using interval",
			"policy", config.Relay.FollowUp.Policy)
		config.Relay.FollowUp.Policy = "interval"
	}
	if config.Slack.UserMapping == nil {
		config.Slack.UserMapping = map[string]string{}
	}
}

func parseIntList(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
