package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/headwind-sh/headwind/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HEADWIND_POLLING_ENABLED", "")
	t.Setenv("HEADWIND_POLLING_INTERVAL", "")
	t.Setenv("WEBHOOK_TIMEOUT", "")
	t.Setenv("WEBHOOK_MAX_RETRIES", "")

	c := config.Load()

	assert.False(t, c.PollingEnabled)
	assert.Equal(t, 300*time.Second, c.PollingInterval)
	assert.True(t, c.HelmAutoDiscovery)
	assert.Equal(t, 10*time.Second, c.WebhookTimeout)
	assert.Equal(t, 3, c.WebhookMaxRetries)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HEADWIND_POLLING_ENABLED", "true")
	t.Setenv("HEADWIND_POLLING_INTERVAL", "60")
	t.Setenv("SLACK_ENABLED", "true")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.example/slack")
	t.Setenv("WEBHOOK_MAX_RETRIES", "5")

	c := config.Load()

	assert.True(t, c.PollingEnabled)
	assert.Equal(t, 60*time.Second, c.PollingInterval)
	assert.True(t, c.SlackEnabled)
	assert.Equal(t, "https://hooks.example/slack", c.SlackWebhookURL)
	assert.Equal(t, 5, c.WebhookMaxRetries)
}
