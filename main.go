package main

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/rcn8397/v4l2loopback-tricks/cmd"
	"github.com/rcn8397/v4l2loopback-tricks/internal/config"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cli humacli.CLI

	// Create Huma CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *cmd.Options) {
		// Config file and environment fill whatever was not given as a flag
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.LoggingConfig())
		logging.SetVerbose(opts.Verbose)
		logger := logging.GetLogger("main")

		// The daemon is only built when the root command runs; subcommands
		// receive the options through humacli.WithOptions.
		var (
			mu     sync.Mutex
			daemon *cmd.Daemon
		)

		hooks.OnStart(func() {
			d := cmd.NewDaemon(opts)
			d.PinDevice = cli.Root().PersistentFlags().Changed("device")
			mu.Lock()
			daemon = d
			mu.Unlock()

			logger.Info("Starting daemon", "port", opts.Port, "device", opts.Device)
			if startErr := d.Start(); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			mu.Lock()
			d := daemon
			mu.Unlock()
			if d == nil {
				return
			}

			logger.Info("Shutting down daemon")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if stopErr := d.Stop(ctx); stopErr != nil {
				logger.Error("Error during shutdown", "error", stopErr)
			}
		})
	})

	root := cli.Root()
	root.Use = "v4l2tricks"
	root.Short = "Feed media files and desktop regions into v4l2loopback devices"

	root.AddCommand(cmd.CreateFilCmd())
	root.AddCommand(cmd.CreateDirCmd())
	root.AddCommand(cmd.CreateDskCmd())
	root.AddCommand(cmd.CreateDevicesCmd())
	root.AddCommand(cmd.CreateConsoleCmd())
	root.AddCommand(cmd.CreateTestSrcCmd())
	root.AddCommand(cmd.CreatePreviewCmd())
	root.AddCommand(cmd.CreateVersionCmd())

	// Run the CLI
	cli.Run()
}
