package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
	"github.com/rcn8397/v4l2loopback-tricks/internal/jobs"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
	"github.com/rcn8397/v4l2loopback-tricks/internal/probe"
	"github.com/rcn8397/v4l2loopback-tricks/internal/stream"
)

// CreateFilCmd creates the fil command.
func CreateFilCmd() *cobra.Command {
	var overlay string

	cmd := &cobra.Command{
		Use:   "fil <source>",
		Short: "Stream a media file to the sink",
		Long: `Streams one media file into the loopback device at its native rate. ` +
			`With --overlay the image is composited over the video. Use --loop to repeat the file.`,
		Args: cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(c *cobra.Command, args []string, opts *Options) {
			logger := logging.GetLogger("stream")

			target := stream.DefaultTarget()
			target.Device = opts.Device
			target.Source = absPath(args[0])
			target.Loop = opts.Loop
			if overlay != "" {
				target.Mode = ffmpeg.ModeOverlay
				target.Overlay = absPath(overlay)
			}

			ctx, stop := signalContext(c.Context())
			defer stop()

			session := newStreamSession(opts)
			defer func() { _ = session.Shutdown() }()

			if err := play(ctx, session, target); err != nil {
				logger.Error("Stream failed", "source", target.Source, "error", err)
				_ = session.Shutdown()
				os.Exit(1)
			}
		}),
	}
	cmd.Flags().StringVar(&overlay, "overlay", "", "Image composited over the video")
	return cmd
}

// CreateDirCmd creates the dir command.
func CreateDirCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "dir <path>",
		Short: "Stream every media file under a directory",
		Long: `Discovers media files under the directory and streams them one after another. ` +
			`With --loop the list starts over after the last file.`,
		Args: cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(c *cobra.Command, args []string, opts *Options) {
			logger := logging.GetLogger("stream")

			ctx, stop := signalContext(c.Context())
			defer stop()

			exts := media.DefaultExtensions
			if all {
				exts = media.ContainerExtensions
			}
			registry := media.NewRegistry()
			root := absPath(args[0])
			res := jobs.Execute(ctx, jobs.NewDescriptor(1, jobs.KindDiscovery, root, logReporter{logger: logger}),
				jobs.Discovery(jobs.DiscoveryOptions{Root: root, Registry: registry, Extensions: exts}))
			if res.Outcome == jobs.OutcomeFailed {
				logger.Error("Failed to discover media", "root", root, "error", res.Err)
				os.Exit(1)
			}
			if registry.Len() == 0 {
				logger.Error("No media found", "root", root)
				os.Exit(1)
			}

			session := newStreamSession(opts)
			defer func() { _ = session.Shutdown() }()

			if err := playAll(ctx, session, opts, registry.Paths(), logger); err != nil {
				logger.Error("Stream failed", "error", err)
				_ = session.Shutdown()
				os.Exit(1)
			}
		}),
	}
	cmd.Flags().BoolVar(&all, "all-formats", false, "Match every known container extension")
	return cmd
}

// CreateDskCmd creates the dsk command.
func CreateDskCmd() *cobra.Command {
	g := ffmpeg.DefaultGeometry
	var display string
	var mirror bool

	cmd := &cobra.Command{
		Use:   "dsk",
		Short: "Stream a desktop region to the sink",
		Long: `Captures a rectangle of an X display and streams it into the loopback device. ` +
			`The display defaults to $DISPLAY.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(c *cobra.Command, _ []string, opts *Options) {
			logger := logging.GetLogger("stream")

			target := stream.DefaultTarget()
			target.Device = opts.Device
			target.Mode = ffmpeg.ModeRegion
			target.Geometry = g
			target.Display = display
			target.Mirror = mirror

			ctx, stop := signalContext(c.Context())
			defer stop()

			session := newStreamSession(opts)
			defer func() { _ = session.Shutdown() }()

			if err := play(ctx, session, target); err != nil {
				logger.Error("Stream failed", "error", err)
				_ = session.Shutdown()
				os.Exit(1)
			}
		}),
	}
	cmd.Flags().IntVarP(&g.X, "x", "x", g.X, "Left edge of the capture region")
	cmd.Flags().IntVarP(&g.Y, "y", "y", g.Y, "Top edge of the capture region")
	cmd.Flags().IntVar(&g.Width, "width", g.Width, "Capture width")
	cmd.Flags().IntVar(&g.Height, "height", g.Height, "Capture height")
	cmd.Flags().StringVarP(&display, "display", "d", "", "X display, defaults to $DISPLAY")
	cmd.Flags().BoolVar(&mirror, "mirror", false, "Flip the capture horizontally")
	return cmd
}

// newStreamSession builds a session for one-shot commands. Sources are
// probed before they are streamed.
func newStreamSession(opts *Options) *stream.Session {
	tools := opts.Tools()
	supervisor := stream.NewSupervisor(tools, probe.New(tools.FFprobe))
	supervisor.Blind = opts.Blind
	return stream.NewSession(supervisor, stream.DefaultTarget(), nil)
}

// play streams target until the transcoder exits or ctx is done.
func play(ctx context.Context, session *stream.Session, target stream.Target) error {
	if err := session.Reconfigure(target); err != nil {
		return err
	}
	if err := session.Stream(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return session.Stop()
	case <-session.RunDone():
		return nil
	}
}

// playAll streams paths in order, starting over while opts.Loop is set. A
// source that fails to start is skipped; a pass where nothing started is
// an error.
func playAll(ctx context.Context, session *stream.Session, opts *Options, paths []string, logger logging.Logger) error {
	for {
		started := 0
		for i, path := range paths {
			if ctx.Err() != nil {
				return nil
			}
			target := stream.DefaultTarget()
			target.Device = opts.Device
			target.Source = path
			logger.Info("Streaming source", "index", i, "source", path)

			err := play(ctx, session, target)
			var startErr *stream.StartError
			switch {
			case errors.As(err, &startErr):
				logger.Warn("Skipping source", "source", path, "error", startErr.Err)
				continue
			case err != nil:
				return err
			}
			started++
		}
		if started == 0 {
			return fmt.Errorf("none of %d sources could be streamed", len(paths))
		}
		if !opts.Loop || ctx.Err() != nil {
			return nil
		}
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func absPath(path string) string {
	path = expandHome(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// logReporter prints job events through a logger.
type logReporter struct {
	logger logging.Logger
}

func (r logReporter) Progress(_ uint64, kind jobs.Kind, step, total int) {
	r.logger.Debug("Job progress", "kind", string(kind), "step", step, "total", total)
}

func (r logReporter) Log(_ uint64, kind jobs.Kind, msg string) {
	r.logger.Info(msg, "kind", string(kind))
}

func (r logReporter) Finished(res jobs.Result) {
	if res.Outcome == jobs.OutcomeFailed {
		r.logger.Warn("Job failed", "kind", string(res.Kind), "error", res.Err)
	}
}
