package slack

import (
	"fmt"
	"strings"

	"github.com/memohai/slackwire/internal/channel"
)

// Type identifies the Slack channel.
const Type = channel.ChannelType("slack")

const (
	dmPolicyOpen      = "open"
	dmPolicyAllowlist = "allowlist"

	groupPolicyOpen      = "open"
	groupPolicyMention   = "mention"
	groupPolicyAllowlist = "allowlist"
)

// Config holds the Slack app credentials and access policies extracted from
// a channel configuration.
type Config struct {
	BotToken       string
	AppToken       string
	DMEnabled      bool
	DMPolicy       string
	DMAllowFrom    []string
	GroupPolicy    string
	GroupAllowFrom []string
}

func parseConfig(raw map[string]any) (Config, error) {
	botToken := channel.ReadString(raw, "botToken", "bot_token")
	appToken := channel.ReadString(raw, "appToken", "app_token")
	if botToken == "" || appToken == "" {
		return Config{}, fmt.Errorf("slack botToken and appToken are required")
	}
	if !strings.HasPrefix(appToken, "xapp-") {
		return Config{}, fmt.Errorf("slack appToken must be an app-level token (xapp-)")
	}
	return Config{
		BotToken:       botToken,
		AppToken:       appToken,
		DMEnabled:      channel.ReadBool(raw, "dmEnabled", true),
		DMPolicy:       normalizePolicy(channel.ReadString(raw, "dmPolicy", "dm_policy"), dmPolicyOpen),
		DMAllowFrom:    channel.ReadStringList(raw, "dmAllowFrom", "dm_allow_from"),
		GroupPolicy:    normalizePolicy(channel.ReadString(raw, "groupPolicy", "group_policy"), groupPolicyMention),
		GroupAllowFrom: channel.ReadStringList(raw, "groupAllowFrom", "group_allow_from"),
	}, nil
}

func normalizeConfig(raw map[string]any) (map[string]any, error) {
	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, err
	}
	result := map[string]any{
		"botToken":    cfg.BotToken,
		"appToken":    cfg.AppToken,
		"dmEnabled":   cfg.DMEnabled,
		"dmPolicy":    cfg.DMPolicy,
		"groupPolicy": cfg.GroupPolicy,
	}
	if len(cfg.DMAllowFrom) > 0 {
		result["dmAllowFrom"] = cfg.DMAllowFrom
	}
	if len(cfg.GroupAllowFrom) > 0 {
		result["groupAllowFrom"] = cfg.GroupAllowFrom
	}
	return result, nil
}

// normalizePolicy lowercases a policy value and fills in the default when it
// is blank. Unknown values pass through; the admission checks decide what an
// unrecognized policy means for each chat kind.
func normalizePolicy(raw, def string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return def
	}
	return value
}

func normalizeTarget(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "#")
	return value
}
