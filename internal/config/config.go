// Package config loads the slackwire TOML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultDMPolicy         = "open"
	DefaultGroupPolicy      = "mention"
	DefaultAgentHost        = "127.0.0.1"
	DefaultAgentPort        = 8081
	DefaultAgentTimeoutSecs = 120
)

type Config struct {
	Log   LogConfig   `toml:"log"`
	Slack SlackConfig `toml:"slack"`
	Agent AgentConfig `toml:"agent"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// SlackConfig holds Slack credentials and access policy.
// DMPolicy is "open" or "allowlist"; GroupPolicy is "open", "mention",
// or "allowlist". Any other group policy value denies channel messages.
type SlackConfig struct {
	BotToken       string   `toml:"bot_token"`
	AppToken       string   `toml:"app_token"`
	DMEnabled      bool     `toml:"dm_enabled"`
	DMPolicy       string   `toml:"dm_policy"`
	DMAllowFrom    []string `toml:"dm_allow_from"`
	GroupPolicy    string   `toml:"group_policy"`
	GroupAllowFrom []string `toml:"group_allow_from"`
}

type AgentConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (c AgentConfig) BaseURL() string {
	host := c.Host
	if host == "" {
		host = DefaultAgentHost
	}
	port := c.Port
	if port == 0 {
		port = DefaultAgentPort
	}
	return "http://" + host + ":" + fmt.Sprint(port)
}

func (c AgentConfig) Timeout() time.Duration {
	secs := c.TimeoutSeconds
	if secs <= 0 {
		secs = DefaultAgentTimeoutSecs
	}
	return time.Duration(secs) * time.Second
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Slack: SlackConfig{
			DMEnabled:   true,
			DMPolicy:    DefaultDMPolicy,
			GroupPolicy: DefaultGroupPolicy,
		},
		Agent: AgentConfig{
			Host:           DefaultAgentHost,
			Port:           DefaultAgentPort,
			TimeoutSeconds: DefaultAgentTimeoutSecs,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
