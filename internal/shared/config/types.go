package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedmineConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key" validate:"required"`
	// FetchLimit caps the page size of the created-since query.
	FetchLimit int `mapstructure:"fetch_limit" validate:"gt=0"`
}

type SlackConfig struct {
	Token   string `mapstructure:"token" validate:"required"`
	Channel string `mapstructure:"channel" validate:"required"`
	// UserMapping maps tracker assignee display names to Slack member IDs
	// for @-mentions. Unknown names simply get no mention.
	UserMapping map[string]string `mapstructure:"user_mapping"`
}

type FollowUpConfig struct {
	// Policy selects the follow-up scheduling strategy: "interval" or "once".
	Policy   string        `mapstructure:"policy" validate:"oneof=interval once"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

type RelayConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	// TrackerAllowlist limits relaying to the listed tracker IDs.
	// Empty means every tracker is relayed.
	TrackerAllowlist   []int          `mapstructure:"tracker_allowlist"`
	CompletionReaction string         `mapstructure:"completion_reaction"`
	DeletionReaction   string         `mapstructure:"deletion_reaction"`
	FollowUp           FollowUpConfig `mapstructure:"follow_up"`
}
