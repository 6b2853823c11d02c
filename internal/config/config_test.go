package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Slack.DMEnabled)
	assert.Equal(t, DefaultDMPolicy, cfg.Slack.DMPolicy)
	assert.Equal(t, DefaultGroupPolicy, cfg.Slack.GroupPolicy)
	assert.Equal(t, "http://127.0.0.1:8081", cfg.Agent.BaseURL())
	assert.Equal(t, 120*time.Second, cfg.Agent.Timeout())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[log]
level = "debug"
format = "json"

[slack]
bot_token = "xoxb-test"
app_token = "xapp-test"
dm_policy = "allowlist"
dm_allow_from = ["U111"]
group_policy = "allowlist"
group_allow_from = ["C222"]

[agent]
host = "agent.internal"
port = 9000
timeout_seconds = 30
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "xoxb-test", cfg.Slack.BotToken)
	assert.Equal(t, "xapp-test", cfg.Slack.AppToken)
	assert.Equal(t, "allowlist", cfg.Slack.DMPolicy)
	assert.Equal(t, []string{"U111"}, cfg.Slack.DMAllowFrom)
	assert.Equal(t, "allowlist", cfg.Slack.GroupPolicy)
	assert.Equal(t, []string{"C222"}, cfg.Slack.GroupAllowFrom)
	assert.Equal(t, "http://agent.internal:9000", cfg.Agent.BaseURL())
	assert.Equal(t, 30*time.Second, cfg.Agent.Timeout())
}

func TestLoadKeepsDMEnabledDefaultWhenUnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[slack]
bot_token = "xoxb-test"
app_token = "xapp-test"
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.True(t, cfg.Slack.DMEnabled)
}
