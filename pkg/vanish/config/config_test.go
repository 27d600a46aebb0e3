package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig
	warns, errs := cfg.Validate()
	require.Empty(t, errs)
	// only the empty secret warning
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Error(), "secret")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errSub string
	}{
		{"bad server id", func(c *Config) { c.ServerID = "lobby 1" }, "serverId"},
		{"negative flush", func(c *Config) { c.CacheUpdatePeriodMillis = -1 }, "cacheUpdatePeriodMillis"},
		{"bad bind", func(c *Config) { c.Bridge.Bind = "nope" }, "bridge.bind"},
		{"bad url", func(c *Config) { c.Bridge.URL = "http://proxy/bridge" }, "bridge.url"},
		{"zero snapshot timeout", func(c *Config) { c.Bridge.SnapshotTimeoutMillis = 0 }, "snapshotTimeoutMillis"},
		{"zero queue", func(c *Config) { c.Bridge.SendQueueSize = 0 }, "sendQueueSize"},
		{"bad quota", func(c *Config) { c.Bridge.Quota.Burst = 0 }, "quota"},
		{"bad health bind", func(c *Config) {
			c.HealthService.Enabled = true
			c.HealthService.Bind = ""
		}, "healthService.bind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig
			tt.mutate(&cfg)
			_, errs := cfg.Validate()
			require.NotEmpty(t, errs)
			var msgs []string
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			assert.Contains(t, strings.Join(msgs, "\n"), tt.errSub)
		})
	}
}

func TestConfig_NilValidate(t *testing.T) {
	var c *Config
	_, errs := c.Validate()
	assert.Len(t, errs, 1)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := DefaultConfig.WithDefaults()
	assert.True(t, strings.HasPrefix(cfg.ServerID, "backend-"))
	_, errs := cfg.Validate()
	assert.Empty(t, errs, "generated server ids are valid")

	cfg.ServerID = "lobby"
	assert.Equal(t, "lobby", cfg.WithDefaults().ServerID)
}

func TestConfig_Durations(t *testing.T) {
	cfg := DefaultConfig
	assert.Equal(t, 300*time.Millisecond, cfg.CacheUpdatePeriod())
	assert.Equal(t, 5*time.Second, cfg.ResyncPeriod())
	assert.Equal(t, 5*time.Second, cfg.SnapshotTimeout())

	cfg.Bridge.Resync = false
	assert.Zero(t, cfg.ResyncPeriod())
}

func TestFeatures_Enabled(t *testing.T) {
	f := DefaultConfig.Features
	for _, name := range FeatureNames {
		assert.True(t, f.Enabled(name), name)
	}
	assert.False(t, f.Enabled("unknown"))
	f.Level.Enabled = false
	assert.False(t, f.Enabled(FeatureLevel))
}

func TestValidateFeatureNames(t *testing.T) {
	warns := ValidateFeatureNames([]string{"level", "prevent_tab_completion", "zzz"})
	require.Len(t, warns, 2)
	assert.Contains(t, warns[0].Error(), `did you mean "prevent_tab_complete"`)
	assert.Contains(t, warns[1].Error(), "known features are")
}

func TestConfig_YAMLKeys(t *testing.T) {
	out, err := yaml.Marshal(DefaultConfig)
	require.NoError(t, err)
	s := string(out)
	for _, key := range []string{
		"serverId:", "purgeOnlineHistoryOnStartup: true", "cacheUpdatePeriodMillis: 300",
		"basicCacheUpdatePeriodMillis: 5000", "prevent_tab_complete:", "checkVanishLevel: false",
	} {
		assert.Contains(t, s, key)
	}

	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("bridge:\n  url: wss://proxy/bridge\nfeatures:\n  level:\n    seeAsSpectator: false\n"), &cfg))
	assert.Equal(t, "wss://proxy/bridge", cfg.Bridge.URL)
	assert.False(t, cfg.Features.Level.SeeAsSpectator)
}
