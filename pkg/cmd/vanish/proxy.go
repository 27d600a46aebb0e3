package vanish

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/robinbraemer/event"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	rpc "google.golang.org/grpc/health/grpc_health_v1"

	"go.minekube.com/vanish/pkg/bridge"
	"go.minekube.com/vanish/pkg/internal/api"
	"go.minekube.com/vanish/pkg/internal/health"
	"go.minekube.com/vanish/pkg/internal/otelutil"
	"go.minekube.com/vanish/pkg/internal/reload"
	"go.minekube.com/vanish/pkg/util/interrupt"
	"go.minekube.com/vanish/pkg/vanish/config"
)

func proxyCommand(g *globalFlags) *cli.Command {
	return &cli.Command{
		Name:  "proxy",
		Usage: "Run the proxy bridge service (default command)",
		Action: func(c *cli.Context) error {
			log, err := newLogger(g.debug, g.verbosity)
			if err != nil {
				return cli.Exit(fmt.Errorf("error creating logger: %w", err), 1)
			}
			v, err := newViper(g.configFile)
			if err != nil {
				return cli.Exit(err, 1)
			}
			if file := v.ConfigFileUsed(); file != "" {
				log.Info("using config file", "config", file)
			}

			ctx, stop := interrupt.TerminationContext(c.Context)
			defer stop()
			ctx = logr.NewContext(ctx, log)

			if err = runProxy(ctx, v); err != nil {
				return cli.Exit(fmt.Errorf("error running proxy bridge: %w", err), 1)
			}
			if sig, ok := interrupt.Signal(ctx); ok {
				log.Info("stopped proxy bridge", "signal", sig.String())
			}
			return nil
		},
	}
}

// runProxy runs the proxy bridge until ctx is done.
func runProxy(ctx context.Context, v *viper.Viper) error {
	log := logr.FromContextOrDiscard(ctx)
	cfg, warns, err := loadConfig(v)
	logWarns(log, warns)
	if err != nil {
		return err
	}

	cleanup, err := otelutil.Init(ctx)
	if err != nil {
		return fmt.Errorf("error initializing OpenTelemetry: %w", err)
	}
	defer cleanup()

	p := bridge.NewProxy(bridge.ProxyOptions{
		PurgeOnBackendDisconnect: cfg.Bridge.PurgeOnBackendDisconnect,
		SendQueueSize:            cfg.Bridge.SendQueueSize,
		Logger:                   log.WithName("bridge"),
	})
	srv := api.NewServer(p, cfg, log.WithName("api"))

	ln, err := api.Listen(cfg.Bridge)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", cfg.Bridge.Bind, err)
	}

	mgr := event.New()
	defer reload.Subscribe(mgr, func(e *reload.ConfigUpdateEvent[config.Config]) {
		onConfigUpdate(log, srv, e)
	})()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return p.Run(ctx) })
	eg.Go(func() error { return srv.Start(ctx, ln) })

	if cfg.HealthService.Enabled {
		run, err := health.New(cfg.HealthService.Bind)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("error creating health probe service: %w", err)
		}
		log.Info("health probe service running", "bind", cfg.HealthService.Bind)
		eg.Go(func() error {
			return run(ctx, func(ctx context.Context) (*rpc.HealthCheckResponse, error) {
				return health.Status(ctx.Err() == nil), nil
			})
		})
	}

	if file := v.ConfigFileUsed(); file != "" {
		current := cfg
		err = reload.Watch(ctx, file, func() error {
			if err := v.ReadInConfig(); err != nil {
				return err
			}
			next, warns, err := loadConfig(v)
			logWarns(log, warns)
			if err != nil {
				return err
			}
			prev := current
			current = next
			reload.FireConfigUpdate(mgr, next, prev)
			return nil
		})
		if err != nil {
			log.Error(err, "error watching config file, auto reload disabled", "config", file)
		}
	}

	return eg.Wait()
}

// onConfigUpdate applies the settings that can change at runtime and
// tells about those that need a restart.
func onConfigUpdate(log logr.Logger, srv *api.Server, e *reload.ConfigUpdateEvent[config.Config]) {
	srv.Update(e.Config)
	prev, next := e.Prev.Bridge, e.Config.Bridge
	if prev.Bind != next.Bind || prev.ProxyProtocol != next.ProxyProtocol ||
		prev.SendQueueSize != next.SendQueueSize ||
		prev.PurgeOnBackendDisconnect != next.PurgeOnBackendDisconnect ||
		e.Prev.HealthService != e.Config.HealthService {
		log.Info("some changed settings only apply after a restart",
			"bridge.bind", next.Bind, "healthService.bind", e.Config.HealthService.Bind)
	}
}

func logWarns(log logr.Logger, warns []error) {
	for _, w := range warns {
		log.Info("config validation warn", "warn", w.Error())
	}
}
