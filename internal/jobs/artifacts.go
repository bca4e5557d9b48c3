package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcn8397/v4l2loopback-tricks/internal/artifacts"
	"github.com/rcn8397/v4l2loopback-tricks/internal/metrics"
)

// DefaultPreviewIncrements is the number of frames sampled for a preview.
const DefaultPreviewIncrements = 4

// ImageGenerator produces image artifacts.
type ImageGenerator interface {
	GenerateThumbnail(ctx context.Context, source, out string, atSeconds float64, width int) error
	AssemblePreview(ctx context.Context, pattern, out string, frameRate int) error
}

// DurationProber reports a source's duration in seconds.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// ArtifactOptions is shared by preview and icon jobs.
type ArtifactOptions struct {
	Layout    artifacts.Layout
	Generator ImageGenerator
	Prober    DurationProber
	Width     int
	Overwrite bool
}

func (o ArtifactOptions) width() int {
	if o.Width <= 0 {
		return artifacts.DefaultThumbnailWidth
	}
	return o.Width
}

// PreviewOptions configures a preview build.
type PreviewOptions struct {
	ArtifactOptions
	Source     string
	Increments int
	FrameRate  int
}

// PreviewBuild samples Increments frames of Source and assembles them into an
// animated preview. Any probe or generation error ends the job.
func PreviewBuild(opts PreviewOptions) Task {
	return func(ctx context.Context, d *Descriptor) error {
		return buildPreview(ctx, d, opts, opts.Source, d.Step)
	}
}

// PreviewBatch builds a preview for each source in turn. Unlike PreviewBuild
// a failing source is logged and skipped.
func PreviewBatch(opts PreviewOptions, sources []string) Task {
	return func(ctx context.Context, d *Descriptor) error {
		total := len(sources)
		for i, src := range sources {
			if err := checkpoint(ctx, d); err != nil {
				return err
			}
			err := buildPreview(ctx, d, opts, src, func(int, int) {})
			if errors.Is(err, ErrAborted) {
				return err
			}
			if err != nil {
				d.Logf("Skipping %s: %v", src, err)
			}
			d.Step(i+1, total)
		}
		return nil
	}
}

func buildPreview(ctx context.Context, d *Descriptor, opts PreviewOptions, src string, step func(step, total int)) error {
	n := opts.Increments
	if n <= 0 {
		n = DefaultPreviewIncrements
	}
	fps := opts.FrameRate
	if fps <= 0 {
		fps = artifacts.DefaultPreviewFrameRate
	}
	layout := opts.Layout

	duration, err := opts.Prober.ProbeDuration(ctx, src)
	if err != nil {
		d.Logf("Cannot probe %s: %v", src, err)
		return err
	}
	if err := layout.Ensure(src); err != nil {
		return fmt.Errorf("preview: %w", err)
	}

	total := n + 1
	for i, at := range artifacts.PreviewTimestamps(duration, n) {
		if err := checkpoint(ctx, d); err != nil {
			return err
		}
		out := layout.PreviewFramePath(src, i+1)
		if opts.Overwrite || !layout.Exists(out) {
			if err := opts.Generator.GenerateThumbnail(ctx, src, out, at, opts.width()); err != nil {
				d.Logf("Frame %d of %s failed: %v", i+1, src, err)
				return err
			}
			metrics.IncArtifactGenerated("frame")
		}
		step(i+1, total)
	}

	if err := checkpoint(ctx, d); err != nil {
		return err
	}
	// The frame pattern would pick up leftovers from a longer build.
	pruned, err := layout.PrunePreviewFrames(src, n)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	out := layout.PreviewPath(src)
	if opts.Overwrite || pruned > 0 || !layout.Exists(out) {
		if err := opts.Generator.AssemblePreview(ctx, layout.PreviewPattern(src), out, fps); err != nil {
			d.Logf("Preview assembly for %s failed: %v", src, err)
			return err
		}
		metrics.IncArtifactGenerated("preview")
		d.Logf("Wrote %s", out)
	} else {
		d.Logf("Preview exists: %s", out)
	}
	step(total, total)
	return nil
}

// IconOptions configures an icon build.
type IconOptions struct {
	ArtifactOptions
	Sources []string
}

// IconBuild writes one icon per source taken at 10% of its duration. A source
// that cannot be probed or thumbnailed is logged and skipped.
func IconBuild(opts IconOptions) Task {
	return func(ctx context.Context, d *Descriptor) error {
		total := len(opts.Sources)
		made := 0

		for i, src := range opts.Sources {
			if err := checkpoint(ctx, d); err != nil {
				return err
			}
			if err := buildIcon(ctx, opts.ArtifactOptions, src); err != nil {
				d.Logf("Skipping %s: %v", src, err)
			} else {
				made++
			}
			d.Step(i+1, total)
		}

		d.Logf("Icons ready for %d of %d sources", made, total)
		return nil
	}
}

func buildIcon(ctx context.Context, opts ArtifactOptions, src string) error {
	out := opts.Layout.IconPath(src)
	if !opts.Overwrite && opts.Layout.Exists(out) {
		return nil
	}
	duration, err := opts.Prober.ProbeDuration(ctx, src)
	if err != nil {
		return err
	}
	if err := opts.Layout.Ensure(src); err != nil {
		return err
	}
	if err := opts.Generator.GenerateThumbnail(ctx, src, out, artifacts.IconTimestamp(duration), opts.width()); err != nil {
		return err
	}
	metrics.IncArtifactGenerated("icon")
	return nil
}
