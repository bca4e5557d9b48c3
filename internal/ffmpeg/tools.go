package ffmpeg

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// Tools holds the paths of the external binaries.
type Tools struct {
	FFmpeg  string `json:"ffmpeg" toml:"ffmpeg"`
	FFprobe string `json:"ffprobe" toml:"ffprobe"`
}

// DefaultTools resolves both binaries through PATH.
func DefaultTools() Tools {
	return Tools{FFmpeg: "ffmpeg", FFprobe: "ffprobe"}
}

// WithDefaults fills missing paths. An explicit ffmpeg path implies the
// ffprobe sitting next to it.
func (t Tools) WithDefaults() Tools {
	if t.FFmpeg == "" {
		t.FFmpeg = "ffmpeg"
	}
	if t.FFprobe == "" {
		t.FFprobe = ResolveProbeBinary(t.FFmpeg)
	}
	return t
}

// ResolveProbeBinary guesses the ffprobe path for a given ffmpeg path.
func ResolveProbeBinary(ffmpegBin string) string {
	if ffmpegBin == "" || !strings.ContainsRune(ffmpegBin, filepath.Separator) {
		return "ffprobe"
	}
	dir, base := filepath.Split(ffmpegBin)
	return filepath.Join(dir, strings.Replace(base, "ffmpeg", "ffprobe", 1))
}

// Check reports a missing binary.
func (t Tools) Check() error {
	for _, bin := range []string{t.FFmpeg, t.FFprobe} {
		if _, err := exec.LookPath(bin); err != nil {
			return err
		}
	}
	return nil
}
