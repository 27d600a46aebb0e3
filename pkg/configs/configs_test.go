package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"go.minekube.com/vanish/pkg/vanish/config"
)

func TestDefaultConfigBytes_MatchDefaultConfig(t *testing.T) {
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(DefaultConfigBytes, &cfg))
	assert.Equal(t, config.DefaultConfig, cfg)
}

func TestMinimalConfigBytes(t *testing.T) {
	cfg := config.DefaultConfig
	require.NoError(t, yaml.Unmarshal(MinimalConfigBytes, &cfg))
	assert.Equal(t, "change-me", cfg.Bridge.Secret)
	warns, errs := cfg.Validate()
	assert.Empty(t, errs)
	assert.Empty(t, warns)
}
