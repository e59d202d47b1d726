package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/jailrun/backend"
	"github.com/isdmx/jailrun/config"
	"github.com/isdmx/jailrun/controller"
	"github.com/isdmx/jailrun/logger"
	"github.com/isdmx/jailrun/mcpserver"
	"github.com/isdmx/jailrun/orchestrator"
)

func main() {
	flags := pflag.NewFlagSet("jailrun", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML config file (default: ./config.yaml or ./config/config.yaml)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	app := fx.New(
		fx.Provide(
			// Config
			func() (*config.Config, error) {
				if *configPath != "" {
					return config.Load(*configPath)
				}
				return config.New()
			},

			// Logger with configuration
			logger.NewFromConfig,

			// Backend client based on config
			backend.New,

			// Status log shared by the session and the controller
			func(cfg *config.Config) *controller.History {
				return controller.NewHistory(cfg.Jail.HistorySize)
			},

			// One session per process
			func(log *zap.Logger, b backend.Backend, history *controller.History) *orchestrator.Orchestrator {
				return orchestrator.New(log, b, orchestrator.WithObserver(history.Record))
			},

			controller.NewFromConfig,

			// MCP Server
			mcpserver.New,
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer, shutdowner fx.Shutdowner, log *zap.Logger) error {
				var serve func() error
				switch cfg.Server.Transport {
				case "stdio":
					serve = server.ServeStdio
				case "http":
					serve = server.ServeHTTP
				default:
					return fmt.Errorf("unsupported transport: %s", cfg.Server.Transport)
				}

				go func() {
					if err := serve(); err != nil {
						log.Error("server stopped", zap.Error(err))
						_ = shutdowner.Shutdown(fx.ExitCode(1))
						return
					}
					_ = shutdowner.Shutdown()
				}()
				return nil
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}
