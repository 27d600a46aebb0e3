// Package vanish is the command line interface of the vanish proxy bridge.
package vanish

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"go.minekube.com/vanish/pkg/configs"
	"go.minekube.com/vanish/pkg/util/configutil"
	"go.minekube.com/vanish/pkg/version"
)

// EnvPrefix prefixes the environment variables overriding config keys,
// e.g. VANISH_BRIDGE_SECRET for bridge.secret.
const EnvPrefix = "VANISH"

// Execute runs App() and exits with code 1 on error.
func Execute() {
	if err := App().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are the values of the app level flags.
type globalFlags struct {
	configFile string
	debug      bool
	verbosity  int
}

// App returns the vanish cli app.
func App() *cli.App {
	app := cli.NewApp()
	app.Name = "vanish"
	app.Usage = "Synchronizes vanished players across a Minecraft network."
	app.Description = `The vanish proxy bridge aggregates the vanish state of every
connected backend server and fans out changes to the others.

Run the bridge with the default command or print the default config:

	vanish
	vanish config > config.yml`
	app.Version = version.String()
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}

	var g globalFlags
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       `config file (default: ./config.yml)`,
			EnvVars:     []string{EnvPrefix + "_CONFIG"},
			Destination: &g.configFile,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Aliases:     []string{"d"},
			Usage:       "Enable debug mode and highest log verbosity",
			Destination: &g.debug,
			EnvVars:     []string{EnvPrefix + "_DEBUG"},
		},
		&cli.IntFlag{
			Name:        "verbosity",
			Aliases:     []string{"v"},
			Usage:       "The higher the verbosity the more logs are shown",
			EnvVars:     []string{EnvPrefix + "_VERBOSITY"},
			Destination: &g.verbosity,
		},
	}
	app.Commands = []*cli.Command{
		proxyCommand(&g),
		configCommand(),
		statusCommand(&g),
	}
	app.Action = proxyCommand(&g).Action
	return app
}

// newViper returns a viper instance with the default config as defaults,
// the config file and VANISH_ environment variables.
func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	var defaults map[string]any
	if err := yaml.Unmarshal(configs.DefaultConfigBytes, &defaults); err != nil {
		return nil, fmt.Errorf("error parsing default config: %w", err)
	}
	configutil.SetDefaults(v, defaults)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %q: %w", v.ConfigFileUsed(), err)
		}
	}
	return v, nil
}

// newLogger returns a new zap logger with a modified production
// or development default config to ensure human readability.
func newLogger(debug bool, verbosity int) (l logr.Logger, err error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-127))
	}

	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}
