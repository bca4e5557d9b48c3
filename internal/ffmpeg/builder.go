package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// baseArgs are the flags every transcoder invocation starts with.
func baseArgs(logLevel string) []string {
	if logLevel == "" {
		logLevel = "info"
	}
	return []string{"-hide_banner", "-nostdin", "-loglevel", "level+" + logLevel}
}

// BuildStreamArgs builds the ffmpeg argument vector (without the binary) that
// feeds p.Device according to p.Mode.
func BuildStreamArgs(p StreamParams) ([]string, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	args := baseArgs(p.LogLevel)
	if p.Progress {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}

	switch p.Mode {
	case ModeFile:
		args = append(args, "-re")
		if p.Loop {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", p.Source, "-an")

	case ModeOverlay:
		x, y := p.OverlayX, p.OverlayY
		if x == 0 && y == 0 {
			x, y = DefaultOverlayX, DefaultOverlayY
		}
		args = append(args, "-re")
		if p.Loop {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args,
			"-i", p.Source,
			"-i", p.Overlay,
			"-filter_complex", fmt.Sprintf("[0:v][1:v]overlay=%d:%d", x, y),
			"-an",
		)

	case ModeRegion:
		args = append(args,
			"-f", "x11grab",
			"-video_size", p.Geometry.Size(),
			"-i", RegionInput(p.Display, p.Geometry),
		)
		if p.Mirror {
			args = append(args, "-vf", "hflip")
		}
	}

	args = append(args, "-pix_fmt", p.pixelFormat(), "-f", "v4l2", p.Device)
	return args, nil
}

// RegionInput renders the x11grab input string, e.g. ":0.0+100,200".
// A display without a screen number gets screen 0.
func RegionInput(display string, g Geometry) string {
	if !strings.Contains(display[strings.LastIndex(display, ":")+1:], ".") {
		display += ".0"
	}
	return fmt.Sprintf("%s+%d,%d", display, g.X, g.Y)
}

// ThumbnailArgs grabs the frame at the given offset and writes it as PNG to stdout.
// Seeking before -i keeps extraction fast on long sources.
func ThumbnailArgs(source string, at float64) []string {
	args := baseArgs("error")
	return append(args,
		"-ss", formatSeconds(at),
		"-i", source,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
}

// PreviewArgs assembles numbered frames matching pattern into an animated GIF.
// The container is forced because out may carry a temporary name.
func PreviewArgs(pattern, out string, frameRate int) []string {
	if frameRate <= 0 {
		frameRate = 2
	}
	args := baseArgs("error")
	return append(args,
		"-y",
		"-f", "image2",
		"-framerate", strconv.Itoa(frameRate),
		"-i", pattern,
		"-f", "gif",
		out,
	)
}

// TestSourceArgs renders the lavfi test pattern into a clip usable as a source.
func TestSourceArgs(out string, seconds int) []string {
	args := baseArgs("info")
	return append(args,
		"-y",
		"-f", "lavfi",
		"-i", "testsrc",
		"-t", strconv.Itoa(seconds),
		"-pix_fmt", "yuv420p",
		out,
	)
}

// ProbeArgs asks ffprobe for container and stream metadata as JSON.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
}

// FormatCommand renders an argument vector for logs, quoting arguments that
// contain spaces.
func FormatCommand(bin string, args []string) string {
	var sb strings.Builder
	sb.WriteString(bin)
	for _, a := range args {
		sb.WriteByte(' ')
		if a == "" || strings.ContainsAny(a, " \t'\"") {
			sb.WriteString(strconv.Quote(a))
			continue
		}
		sb.WriteString(a)
	}
	return sb.String()
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
