package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"ROUTER_ADDR", "TRACKER_BASE_URL", "TRACKER_API_TOKEN",
		"TRACKER_TEAM_ID", "WEBHOOK_HMAC_SECRET", "ENABLE_RATE_LIMITING",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":3000", cfg.Addr)
	assert.Equal(t, "https://api.clickup.com/api/v2", cfg.TrackerBaseURL)
	assert.False(t, cfg.RateLimitingEnabled)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ROUTER_ADDR", ":8080")
	t.Setenv("TRACKER_BASE_URL", "http://tracker.test")
	t.Setenv("ENABLE_RATE_LIMITING", "true")
	t.Setenv("DEFAULT_CX_USER_ID", "900")

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "http://tracker.test", cfg.TrackerBaseURL)
	assert.True(t, cfg.RateLimitingEnabled)
	assert.Equal(t, "900", cfg.DefaultCXUserID)
}

func TestRateLimitFlagRequiresExactTrue(t *testing.T) {
	for _, v := range []string{"1", "TRUE", "yes", "on"} {
		t.Setenv("ENABLE_RATE_LIMITING", v)
		assert.False(t, FromEnv().RateLimitingEnabled, "value %q must not enable the limiter", v)
	}
}

func TestMissingRequired(t *testing.T) {
	cfg := Service{}
	assert.ElementsMatch(t,
		[]string{"TRACKER_API_TOKEN", "TRACKER_TEAM_ID", "WEBHOOK_HMAC_SECRET"},
		cfg.MissingRequired(),
	)

	cfg = Service{TrackerAPIToken: "tok", TrackerTeamID: "team", HMACSecret: "secret"}
	assert.Empty(t, cfg.MissingRequired())
}
