package vanish

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"go.minekube.com/vanish/pkg/configs"
	"go.minekube.com/vanish/pkg/vanish/config"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Output default configuration file",
		Description: `Output the default configuration file to stdout or a file.
You can redirect to a file or use the --write flag:

	vanish config > config.yml
	vanish config --write              # Writes to config.yml

Available config types:
  - full (default): Full configuration with all options
  - minimal: Minimal configuration (uses all defaults)`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Usage:   "Config type: full or minimal",
				Value:   "full",
			},
			&cli.BoolFlag{
				Name:    "write",
				Aliases: []string{"w"},
				Usage:   "Write config to config.yml instead of stdout",
			},
		},
		Action: func(c *cli.Context) error {
			configType := c.String("type")
			var configBytes []byte

			switch configType {
			case "full":
				configBytes = configs.DefaultConfigBytes
			case "minimal":
				configBytes = configs.MinimalConfigBytes
			default:
				return cli.Exit(fmt.Sprintf("unknown config type: %s (valid types: full, minimal)", configType), 1)
			}

			if c.Bool("write") {
				outputFile := "config.yml"
				err := os.WriteFile(outputFile, configBytes, 0644)
				if err != nil {
					return cli.Exit(fmt.Errorf("error writing config to %q: %w", outputFile, err), 1)
				}
				_, _ = fmt.Fprintf(c.App.Writer, "Configuration written to %s\n", outputFile)
				return nil
			}

			_, err := c.App.Writer.Write(configBytes)
			if err != nil {
				return cli.Exit(fmt.Errorf("error writing config: %w", err), 1)
			}
			return nil
		},
	}
}

// loadConfig unmarshals and validates the config held by v.
// Validation errors are joined into the returned error.
func loadConfig(v *viper.Viper) (cfg *config.Config, warns []error, err error) {
	c := config.DefaultConfig
	if err = v.Unmarshal(&c); err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}
	warns, errs := c.Validate()
	var names []string
	for name := range v.GetStringMap("features") {
		names = append(names, name)
	}
	warns = append(warns, config.ValidateFeatureNames(names)...)
	if len(errs) != 0 {
		return nil, warns, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return &c, warns, nil
}
