// Package probe reads media metadata with ffprobe.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
)

// ErrNoVideoStream is returned for inputs without a video stream.
var ErrNoVideoStream = errors.New("no video stream")

// Info is what the rest of the program needs to know about a media file.
type Info struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameCount int     `json:"frame_count"`
	Duration   float64 `json:"duration_seconds"`
	Codec      string  `json:"codec,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
}

// ProbeError reports that a file could not be probed.
type ProbeError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("probe %s: %s", e.Path, e.Reason)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober runs ffprobe. The zero value uses "ffprobe" from PATH.
// It holds no state and is safe for concurrent use.
type Prober struct {
	Binary string
}

// New returns a Prober for the given binary.
func New(binary string) *Prober {
	return &Prober{Binary: binary}
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		NbFrames     string `json:"nb_frames"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns dimensions, frame count and duration of the first video stream.
func (p *Prober) Probe(ctx context.Context, path string) (Info, error) {
	raw, err := p.run(ctx, path)
	if err != nil {
		return Info{}, err
	}
	return parse(path, raw)
}

// ProbeDuration returns the playable duration in seconds.
func (p *Prober) ProbeDuration(ctx context.Context, path string) (float64, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	if info.Duration <= 0 {
		return 0, &ProbeError{Path: path, Reason: "unknown duration"}
	}
	return info.Duration, nil
}

func (p *Prober) run(ctx context.Context, path string) ([]byte, error) {
	bin := p.Binary
	if bin == "" {
		bin = "ffprobe"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, ffmpeg.ProbeArgs(path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		reason := "ffprobe failed"
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			reason = msg
		}
		return nil, &ProbeError{Path: path, Reason: reason, Err: err}
	}
	return stdout.Bytes(), nil
}

func parse(path string, raw []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Info{}, &ProbeError{Path: path, Reason: "unparsable ffprobe output", Err: err}
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := Info{
			Width:  s.Width,
			Height: s.Height,
			Codec:  s.CodecName,
		}
		info.Duration = parseFloat(s.Duration)
		if info.Duration <= 0 {
			info.Duration = parseFloat(out.Format.Duration)
		}
		info.FrameRate = parseRate(s.AvgFrameRate)
		if info.FrameRate <= 0 {
			info.FrameRate = parseRate(s.RFrameRate)
		}
		if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
			info.FrameCount = n
		} else if info.FrameRate > 0 && info.Duration > 0 {
			info.FrameCount = int(math.Round(info.Duration * info.FrameRate))
		}
		if info.Width <= 0 || info.Height <= 0 {
			return Info{}, &ProbeError{Path: path, Reason: "video stream has no dimensions"}
		}
		return info, nil
	}
	return Info{}, &ProbeError{Path: path, Reason: "no video stream", Err: ErrNoVideoStream}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}
