package vanish

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gookit/color"
	"github.com/urfave/cli/v2"

	"go.minekube.com/vanish/pkg/bridge"
)

func statusCommand(g *globalFlags) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Print the network snapshot of a running proxy bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "Status endpoint or bridge url of the proxy (default: derived from bridge.url)",
			},
			&cli.BoolFlag{
				Name:  "vanished",
				Usage: "Only list vanished players",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			v, err := newViper(g.configFile)
			if err != nil {
				return cli.Exit(err, 1)
			}
			cfg, _, err := loadConfig(v)
			if err != nil {
				return cli.Exit(err, 1)
			}
			target := c.String("url")
			if target == "" {
				target = cfg.Bridge.URL
			}
			statusURL, err := bridge.StatusURL(target)
			if err != nil {
				return cli.Exit(fmt.Errorf("invalid url %q: %w", target, err), 1)
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			s, err := (&bridge.StatusClient{URL: statusURL, Secret: cfg.Bridge.Secret}).Fetch(ctx)
			if err != nil {
				return cli.Exit(err, 1)
			}
			printStatus(c.App.Writer, s, c.Bool("vanished"))
			return nil
		},
	}
}

func printStatus(w io.Writer, s *bridge.Status, onlyVanished bool) {
	_, _ = fmt.Fprintf(w, "%s %d\n", color.Bold.Sprint("Backends:"), len(s.Backends))
	for _, b := range s.Backends {
		_, _ = fmt.Fprintf(w, "  %s\n", color.Cyan.Sprint(b))
	}
	vanished := 0
	for _, u := range s.Users {
		if u.Vanished {
			vanished++
		}
	}
	_, _ = fmt.Fprintf(w, "%s %d (%d vanished)\n", color.Bold.Sprint("Players:"), len(s.Users), vanished)
	for _, u := range s.Users {
		if onlyVanished && !u.Vanished {
			continue
		}
		state := color.Green.Sprint("visible")
		if u.Vanished {
			state = color.Yellow.Sprintf("vanished (level %d)", u.Level)
		}
		_, _ = fmt.Fprintf(w, "  %-16s %s %s\n", u.Username, color.Gray.Sprint("@"+u.ServerID), state)
	}
}
