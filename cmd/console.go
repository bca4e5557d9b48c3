package cmd

import (
	"io"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/rcn8397/v4l2loopback-tricks/internal/config"
	"github.com/rcn8397/v4l2loopback-tricks/internal/console"
	"github.com/rcn8397/v4l2loopback-tricks/internal/devices"
	"github.com/rcn8397/v4l2loopback-tricks/internal/events"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
	"github.com/rcn8397/v4l2loopback-tricks/internal/probe"
	"github.com/rcn8397/v4l2loopback-tricks/internal/stream"
)

// CreateConsoleCmd creates the console command.
func CreateConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console [path]",
		Short: "Interactive stream console",
		Long: `Opens a line console to load media, pick a sink and switch sources while streaming. ` +
			`An optional path is loaded first. Type help for the commands.`,
		Args: cobra.MaximumNArgs(1),
		Run: humacli.WithOptions(func(c *cobra.Command, args []string, opts *Options) {
			logger := logging.GetLogger("console")

			// Log lines would tear the prompt apart; keep them in the
			// buffer and only print them when asked to.
			if opts.Verbose {
				logging.SetOutput(os.Stderr)
			} else {
				logging.SetOutput(io.Discard)
			}

			settings, err := config.LoadSettings(opts.Config)
			if err != nil {
				logger.Warn("Failed to load settings, using defaults", "error", err)
			}

			bus := events.New()
			registry := media.NewRegistry()
			tools := opts.Tools()
			prober := &media.CachingProber{Registry: registry, Prober: probe.New(tools.FFprobe)}
			supervisor := stream.NewSupervisor(tools, prober)
			supervisor.Blind = opts.Blind

			target := settings.Stream.ApplyTo(stream.DefaultTarget())
			target.Device = opts.Device
			target.Loop = target.Loop || opts.Loop
			session := stream.NewSession(supervisor, target, bus)
			defer func() { _ = session.Shutdown() }()

			library := settings.Library.LibraryOptions()
			con := console.New(console.Options{
				Session:    session,
				Registry:   registry,
				Devices:    devices.NewLister(),
				Extensions: library.Extensions,
				Exclude:    library.Exclude,
				Bus:        bus,
				In:         os.Stdin,
				Out:        os.Stdout,
			})

			ctx, stop := signalContext(c.Context())
			defer stop()

			if len(args) == 1 {
				con.Load(ctx, args[0])
			}
			if err := con.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Console failed", "error", err)
				_ = session.Shutdown()
				os.Exit(1)
			}
		}),
	}
}
