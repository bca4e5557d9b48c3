package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/rcn8397/v4l2loopback-tricks/internal/artifacts"
	"github.com/rcn8397/v4l2loopback-tricks/internal/devices"
	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
	"github.com/rcn8397/v4l2loopback-tricks/internal/jobs"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
	"github.com/rcn8397/v4l2loopback-tricks/internal/probe"
	"github.com/rcn8397/v4l2loopback-tricks/internal/process"
	"github.com/rcn8397/v4l2loopback-tricks/internal/version"
)

// DefaultTestSource is where testsrc writes unless told otherwise.
const DefaultTestSource = "./testsrc.mp4"

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List video devices",
		Long:  `Lists the video nodes under /dev, marking v4l2loopback sinks.`,
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			list, err := devices.NewLister().List()
			if err != nil {
				logging.GetLogger("devices").Error("Failed to list devices", "error", err)
				os.Exit(1)
			}
			if len(list) == 0 {
				fmt.Println("No video devices found")
				return
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DEVICE\tNAME\tDRIVER\tLOOPBACK\tOUTPUT")
			for _, d := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", d.Path, d.Name, d.Driver, d.Loopback, d.Output)
			}
			_ = w.Flush()
		},
	}
}

// CreateTestSrcCmd creates the testsrc command.
func CreateTestSrcCmd() *cobra.Command {
	var seconds int

	cmd := &cobra.Command{
		Use:   "testsrc [output]",
		Short: "Render the ffmpeg test pattern into a clip",
		Long:  `Writes a lavfi testsrc clip that can be streamed without any real media.`,
		Args:  cobra.MaximumNArgs(1),
		Run: humacli.WithOptions(func(c *cobra.Command, args []string, opts *Options) {
			logger := logging.GetLogger("ffmpeg")
			out := DefaultTestSource
			if len(args) == 1 {
				out = args[0]
			}

			ctx, stop := signalContext(c.Context())
			defer stop()

			code, err := runTool(ctx, "testsrc", append([]string{opts.Tools().FFmpeg}, ffmpeg.TestSourceArgs(absPath(out), seconds)...))
			if err != nil {
				logger.Error("Failed to render test source", "error", err)
				os.Exit(1)
			}
			if code != 0 {
				logger.Error("ffmpeg exited with an error", "exit_code", code)
				os.Exit(code)
			}
			logger.Info("Test source written", "path", out, "seconds", seconds)
		}),
	}
	cmd.Flags().IntVar(&seconds, "seconds", 600, "Clip length in seconds")
	return cmd
}

// runTool runs args to completion and returns the exit code. Diagnostics
// are mirrored to the ffmpeg logger.
func runTool(ctx context.Context, id string, args []string) (int, error) {
	p, err := process.Start(process.Options{
		ID:           id,
		Args:         args,
		Logger:       logging.GetLogger("process"),
		OutputLogger: logging.GetLogger("ffmpeg"),
		LogParser:    ffmpeg.ParseLogLevel,
	})
	if err != nil {
		return -1, err
	}
	select {
	case <-p.Done():
	case <-ctx.Done():
		_ = p.Stop()
		return -1, ctx.Err()
	}
	return p.ExitCode(), nil
}

// CreatePreviewCmd creates the preview command.
func CreatePreviewCmd() *cobra.Command {
	var overwrite bool
	var increments int

	cmd := &cobra.Command{
		Use:   "preview <source>",
		Short: "Build the icon and animated preview of a media file",
		Long: `Writes <cache>/<name>/icon.jpg and <cache>/<name>/<name>.gif. ` +
			`Existing artifacts are kept unless --overwrite is given.`,
		Args: cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(c *cobra.Command, args []string, opts *Options) {
			logger := logging.GetLogger("jobs")
			source := absPath(args[0])
			if _, err := os.Stat(source); err != nil {
				logger.Error("Source not found", "source", source, "error", err)
				os.Exit(1)
			}

			ctx, stop := signalContext(c.Context())
			defer stop()

			tools := opts.Tools()
			layout := opts.Layout()
			artifactOpts := jobs.ArtifactOptions{
				Layout:    layout,
				Generator: artifacts.NewGenerator(tools.FFmpeg),
				Prober:    probe.New(tools.FFprobe),
				Overwrite: overwrite,
			}
			reporter := logReporter{logger: logger}

			icon := jobs.Execute(ctx, jobs.NewDescriptor(1, jobs.KindIcons, source, reporter),
				jobs.IconBuild(jobs.IconOptions{ArtifactOptions: artifactOpts, Sources: []string{source}}))
			preview := jobs.Execute(ctx, jobs.NewDescriptor(2, jobs.KindPreview, source, reporter),
				jobs.PreviewBuild(jobs.PreviewOptions{ArtifactOptions: artifactOpts, Source: source, Increments: increments}))

			for _, res := range []jobs.Result{icon, preview} {
				if res.Outcome != jobs.OutcomeCompleted {
					logger.Error("Artifact job did not complete", "kind", string(res.Kind), "outcome", string(res.Outcome), "error", res.Err)
					os.Exit(1)
				}
			}
			fmt.Println(layout.IconPath(source))
			fmt.Println(layout.PreviewPath(source))
		}),
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Regenerate existing artifacts")
	cmd.Flags().IntVar(&increments, "increments", jobs.DefaultPreviewIncrements, "Number of preview frames")
	return cmd
}

// CreateVersionCmd creates the version command.
func CreateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.Get().Summary())
		},
	}
}
