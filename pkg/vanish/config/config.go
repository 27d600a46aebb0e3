// Package config is the configuration of vanish.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"go.minekube.com/vanish/pkg/internal/suggest"
	"go.minekube.com/vanish/pkg/util/validation"
)

// DefaultConfig is the default configuration.
var DefaultConfig = Config{
	ServerID:                     "",
	PurgeOnlineHistoryOnStartup:  true,
	CacheUpdatePeriodMillis:      300,
	BasicCacheUpdatePeriodMillis: 5000,
	Bridge: Bridge{
		Bind:                     "0.0.0.0:25580",
		URL:                      "ws://localhost:25580/bridge",
		Secret:                   "",
		ProxyProtocol:            false,
		Resync:                   true,
		PurgeOnBackendDisconnect: false,
		SnapshotTimeoutMillis:    5000,
		SendQueueSize:            256,
		Quota: Quota{
			Enabled:    true,
			OPS:        5,
			Burst:      10,
			MaxEntries: 1000,
		},
	},
	HealthService: HealthService{
		Enabled: false,
		Bind:    "0.0.0.0:9090",
	},
	Features: Features{
		Level: Level{
			Enabled:        true,
			SeeAsSpectator: true,
		},
		PreventTabComplete: PreventTabComplete{
			Enabled:          true,
			CheckVanishLevel: false,
		},
		PreventInteract: PreventInteract{
			Enabled:              true,
			PressurePlateTrigger: true,
			DripLeaf:             true,
			Interact:             false,
		},
		InventoryInspect: InventoryInspect{
			Enabled:          true,
			ModifyPermission: "vanish.features.inventory_inspect.modify",
		},
		JoinQuitMessage: JoinQuitMessage{
			Enabled:     true,
			QuitMessage: "&e{player} left the game",
			JoinMessage: "&e{player} joined the game",
		},
	},
}

// Config is the configuration of a vanish backend and the proxy bridge.
type Config struct {
	// ServerID identifies this backend on the bridge. Generated if empty.
	ServerID string `yaml:"serverId" mapstructure:"serverId"`
	// PurgeOnlineHistoryOnStartup drops all state left from a previous run.
	PurgeOnlineHistoryOnStartup bool `yaml:"purgeOnlineHistoryOnStartup" mapstructure:"purgeOnlineHistoryOnStartup"`
	// CacheUpdatePeriodMillis batches outgoing state changes.
	CacheUpdatePeriodMillis int `yaml:"cacheUpdatePeriodMillis" mapstructure:"cacheUpdatePeriodMillis"`
	// BasicCacheUpdatePeriodMillis is the period of the full resync.
	BasicCacheUpdatePeriodMillis int `yaml:"basicCacheUpdatePeriodMillis" mapstructure:"basicCacheUpdatePeriodMillis"`

	Bridge        Bridge        `yaml:"bridge" mapstructure:"bridge"`
	HealthService HealthService `yaml:"healthService" mapstructure:"healthService"`
	Features      Features      `yaml:"features" mapstructure:"features"`
}

type (
	// Bridge configures both ends of the bridge.
	Bridge struct {
		Bind                     string `yaml:"bind" mapstructure:"bind"` // proxy listen address
		URL                      string `yaml:"url" mapstructure:"url"`   // backend dial address
		Secret                   string `yaml:"secret" mapstructure:"secret"`
		ProxyProtocol            bool   `yaml:"proxyProtocol" mapstructure:"proxyProtocol"`
		Resync                   bool   `yaml:"resync" mapstructure:"resync"`
		PurgeOnBackendDisconnect bool   `yaml:"purgeOnBackendDisconnect" mapstructure:"purgeOnBackendDisconnect"`
		SnapshotTimeoutMillis    int    `yaml:"snapshotTimeoutMillis" mapstructure:"snapshotTimeoutMillis"`
		SendQueueSize            int    `yaml:"sendQueueSize" mapstructure:"sendQueueSize"`
		Quota                    Quota  `yaml:"quota" mapstructure:"quota"`
	}
	// Quota limits bridge connection attempts per IP block.
	Quota struct {
		Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
		OPS        float64 `yaml:"ops" mapstructure:"ops"`     // allowed connections per second
		Burst      int     `yaml:"burst" mapstructure:"burst"` // token bucket size
		MaxEntries int     `yaml:"maxEntries" mapstructure:"maxEntries"`
	}
	// HealthService is the grpc health probe of the proxy.
	HealthService struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Bind    string `yaml:"bind" mapstructure:"bind"`
	}
)

// Features holds the settings of every built-in feature.
type Features struct {
	Level              Level              `yaml:"level" mapstructure:"level"`
	PreventTabComplete PreventTabComplete `yaml:"prevent_tab_complete" mapstructure:"prevent_tab_complete"`
	PreventInteract    PreventInteract    `yaml:"prevent_interact" mapstructure:"prevent_interact"`
	InventoryInspect   InventoryInspect   `yaml:"inventory_inspect" mapstructure:"inventory_inspect"`
	JoinQuitMessage    JoinQuitMessage    `yaml:"join_quit_message" mapstructure:"join_quit_message"`
}

// Feature names as used in the features section.
const (
	FeatureLevel              = "level"
	FeaturePreventTabComplete = "prevent_tab_complete"
	FeaturePreventInteract    = "prevent_interact"
	FeatureInventoryInspect   = "inventory_inspect"
	FeatureJoinQuitMessage    = "join_quit_message"
)

// FeatureNames lists the known feature names.
var FeatureNames = []string{
	FeatureLevel,
	FeaturePreventTabComplete,
	FeaturePreventInteract,
	FeatureInventoryInspect,
	FeatureJoinQuitMessage,
}

type (
	Level struct {
		Enabled bool `yaml:"enabled" mapstructure:"enabled"`
		// SeeAsSpectator shows vanished players as spectators to those who can see them.
		SeeAsSpectator bool `yaml:"seeAsSpectator" mapstructure:"seeAsSpectator"`
	}
	PreventTabComplete struct {
		Enabled bool `yaml:"enabled" mapstructure:"enabled"`
		// CheckVanishLevel lets observers with permission complete names up to their own level.
		CheckVanishLevel bool `yaml:"checkVanishLevel" mapstructure:"checkVanishLevel"`
	}
	PreventInteract struct {
		Enabled              bool `yaml:"enabled" mapstructure:"enabled"`
		PressurePlateTrigger bool `yaml:"pressurePlateTrigger" mapstructure:"pressurePlateTrigger"`
		DripLeaf             bool `yaml:"dripLeaf" mapstructure:"dripLeaf"`
		Interact             bool `yaml:"interact" mapstructure:"interact"` // cancel every interaction
	}
	InventoryInspect struct {
		Enabled          bool   `yaml:"enabled" mapstructure:"enabled"`
		ModifyPermission string `yaml:"modifyPermission" mapstructure:"modifyPermission"`
	}
	JoinQuitMessage struct {
		Enabled bool `yaml:"enabled" mapstructure:"enabled"`
		// Messages use & color codes. {player} is replaced by the username.
		QuitMessage string `yaml:"quitMessage" mapstructure:"quitMessage"`
		JoinMessage string `yaml:"joinMessage" mapstructure:"joinMessage"`
	}
)

// Enabled returns whether the feature with the given name is enabled.
// Unknown names are disabled.
func (f *Features) Enabled(name string) bool {
	switch name {
	case FeatureLevel:
		return f.Level.Enabled
	case FeaturePreventTabComplete:
		return f.PreventTabComplete.Enabled
	case FeaturePreventInteract:
		return f.PreventInteract.Enabled
	case FeatureInventoryInspect:
		return f.InventoryInspect.Enabled
	case FeatureJoinQuitMessage:
		return f.JoinQuitMessage.Enabled
	}
	return false
}

// WithDefaults returns a copy of c with a generated ServerID if it was empty.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.ServerID) == "" {
		c.ServerID = "backend-" + xid.New().String()
	}
	return c
}

// CacheUpdatePeriod is CacheUpdatePeriodMillis as a duration.
func (c *Config) CacheUpdatePeriod() time.Duration {
	return time.Duration(c.CacheUpdatePeriodMillis) * time.Millisecond
}

// ResyncPeriod is the periodic resync interval or zero if resync is disabled.
func (c *Config) ResyncPeriod() time.Duration {
	if !c.Bridge.Resync {
		return 0
	}
	return time.Duration(c.BasicCacheUpdatePeriodMillis) * time.Millisecond
}

// SnapshotTimeout is Bridge.SnapshotTimeoutMillis as a duration.
func (c *Config) SnapshotTimeout() time.Duration {
	return time.Duration(c.Bridge.SnapshotTimeoutMillis) * time.Millisecond
}

// Validate validates c and returns warnings and errors.
func (c *Config) Validate() (warns []error, errs []error) {
	e := func(m string, args ...any) { errs = append(errs, fmt.Errorf(m, args...)) }
	w := func(m string, args ...any) { warns = append(warns, fmt.Errorf(m, args...)) }

	if c == nil {
		e("config must not be nil")
		return
	}

	if c.ServerID != "" && !validation.ValidServerID(c.ServerID) {
		e("Invalid serverId %q: %s and length be 1-%d", c.ServerID,
			validation.QualifiedNameErrMsg, validation.QualifiedNameMaxLength)
	}
	if c.CacheUpdatePeriodMillis < 0 {
		e("cacheUpdatePeriodMillis must not be negative, got %d", c.CacheUpdatePeriodMillis)
	}
	if c.BasicCacheUpdatePeriodMillis < 0 {
		e("basicCacheUpdatePeriodMillis must not be negative, got %d", c.BasicCacheUpdatePeriodMillis)
	} else if c.Bridge.Resync && c.BasicCacheUpdatePeriodMillis == 0 {
		w("bridge.resync is enabled but basicCacheUpdatePeriodMillis is 0, periodic resync is disabled")
	}
	if c.Bridge.Resync && c.BasicCacheUpdatePeriodMillis > 0 &&
		c.BasicCacheUpdatePeriodMillis < c.CacheUpdatePeriodMillis {
		w("basicCacheUpdatePeriodMillis (%d) is shorter than cacheUpdatePeriodMillis (%d)",
			c.BasicCacheUpdatePeriodMillis, c.CacheUpdatePeriodMillis)
	}

	if c.Bridge.Bind != "" {
		if err := validation.ValidHostPort(c.Bridge.Bind); err != nil {
			e("Invalid bridge.bind %q: %v", c.Bridge.Bind, err)
		}
	}
	if c.Bridge.URL != "" {
		if err := validation.ValidWebSocketURL(c.Bridge.URL); err != nil {
			e("Invalid bridge.url %q: %v", c.Bridge.URL, err)
		}
	}
	if c.Bridge.Secret == "" {
		w("bridge.secret is empty, any backend that can reach the proxy may join the bridge")
	}
	if c.Bridge.SnapshotTimeoutMillis <= 0 {
		e("bridge.snapshotTimeoutMillis must be positive, got %d", c.Bridge.SnapshotTimeoutMillis)
	}
	if c.Bridge.SendQueueSize <= 0 {
		e("bridge.sendQueueSize must be positive, got %d", c.Bridge.SendQueueSize)
	}
	if q := c.Bridge.Quota; q.Enabled {
		if q.OPS <= 0 || q.Burst <= 0 || q.MaxEntries <= 0 {
			e("bridge.quota values must be positive when enabled")
		}
	}

	if c.HealthService.Enabled {
		if err := validation.ValidHostPort(c.HealthService.Bind); err != nil {
			e("Invalid healthService.bind %q: %v", c.HealthService.Bind, err)
		}
	}

	if c.Features.InventoryInspect.Enabled && c.Features.InventoryInspect.ModifyPermission == "" {
		w("features.inventory_inspect.modifyPermission is empty, nobody can modify inspected inventories")
	}
	return
}

// ValidateFeatureNames returns a warning for every name in the features
// section that is not a known feature, suggesting the closest known name.
func ValidateFeatureNames(names []string) (warns []error) {
	known := map[string]bool{}
	for _, n := range FeatureNames {
		known[n] = true
	}
	for _, name := range names {
		if known[strings.ToLower(name)] {
			continue
		}
		if s, ok := suggest.Closest(name, FeatureNames); ok {
			warns = append(warns, fmt.Errorf("unknown feature %q in features section, did you mean %q?", name, s))
			continue
		}
		warns = append(warns, fmt.Errorf("unknown feature %q in features section, known features are %s",
			name, strings.Join(FeatureNames, ", ")))
	}
	return warns
}
