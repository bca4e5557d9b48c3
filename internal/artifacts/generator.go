package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/renameio/v2"

	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
)

// DefaultThumbnailWidth is the width thumbnails are scaled to; height keeps
// the aspect ratio.
const DefaultThumbnailWidth = 360

// DefaultPreviewFrameRate is the frame rate of assembled previews.
const DefaultPreviewFrameRate = 2

// errNoFrame means ffmpeg exited cleanly without emitting an image, which
// happens when seeking past the end of the source.
var errNoFrame = errors.New("no frame decoded")

// GenerationError reports a failed thumbnail or preview.
type GenerationError struct {
	Op   string // "thumbnail" or "preview"
	Path string // source file or frame pattern
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator writes image artifacts with ffmpeg. Outputs are replaced
// atomically so readers never observe a half-written file.
type Generator struct {
	FFmpeg string
	Logger logging.Logger
}

// NewGenerator returns a Generator using the given ffmpeg binary.
func NewGenerator(ffmpegBin string) *Generator {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	return &Generator{FFmpeg: ffmpegBin, Logger: logging.GetLogger("artifacts")}
}

// GenerateThumbnail extracts the frame at atSeconds from source, scales it
// to width and writes it to out, overwriting any existing file. The image
// format follows out's extension. out's directory must exist; see
// Layout.Ensure.
func (g *Generator) GenerateThumbnail(ctx context.Context, source, out string, atSeconds float64, width int) error {
	fail := func(err error) error {
		return &GenerationError{Op: "thumbnail", Path: source, Err: err}
	}

	data, err := g.run(ctx, ffmpeg.ThumbnailArgs(source, atSeconds))
	if err != nil {
		return fail(err)
	}
	if len(data) == 0 {
		return fail(errNoFrame)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fail(fmt.Errorf("decode frame: %w", err))
	}
	if width > 0 && img.Bounds().Dx() != width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	format, err := imaging.FormatFromFilename(out)
	if err != nil {
		format = imaging.JPEG
	}

	pendingFile, err := renameio.NewPendingFile(out, renameio.WithPermissions(0o644))
	if err != nil {
		return fail(fmt.Errorf("create pending file: %w", err))
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			g.logger().Debug("Cleanup pending thumbnail", "path", out, "error", err)
		}
	}()

	if err := imaging.Encode(pendingFile, img, format, imaging.JPEGQuality(85)); err != nil {
		return fail(fmt.Errorf("encode: %w", err))
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fail(fmt.Errorf("replace %s: %w", out, err))
	}

	g.logger().Debug("Thumbnail written", "source", source, "out", out, "at", atSeconds)
	return nil
}

// AssemblePreview joins the frames matching pattern into an animated GIF at
// out, whose directory must exist.
func (g *Generator) AssemblePreview(ctx context.Context, pattern, out string, frameRate int) error {
	fail := func(err error) error {
		return &GenerationError{Op: "preview", Path: pattern, Err: err}
	}

	pendingFile, err := renameio.NewPendingFile(out, renameio.WithPermissions(0o644))
	if err != nil {
		return fail(fmt.Errorf("create pending file: %w", err))
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			g.logger().Debug("Cleanup pending preview", "path", out, "error", err)
		}
	}()

	// ffmpeg writes to the pending file's path; the rename publishes it.
	if _, err := g.run(ctx, ffmpeg.PreviewArgs(pattern, pendingFile.Name(), frameRate)); err != nil {
		return fail(err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fail(fmt.Errorf("replace %s: %w", out, err))
	}

	g.logger().Debug("Preview written", "pattern", pattern, "out", out)
	return nil
}

// run executes ffmpeg and returns its stdout.
func (g *Generator) run(ctx context.Context, args []string) ([]byte, error) {
	bin := g.FFmpeg
	if bin == "" {
		bin = "ffmpeg"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	return stdout.Bytes(), nil
}

func (g *Generator) logger() logging.Logger {
	if g.Logger == nil {
		return logging.GetLogger("artifacts")
	}
	return g.Logger
}
