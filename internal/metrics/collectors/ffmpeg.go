// Package collectors turns transcoder output into metrics.
package collectors

import (
	"strconv"
	"strings"
	"sync"

	"github.com/rcn8397/v4l2loopback-tricks/internal/metrics"
)

// FFmpegProgress consumes the key=value blocks ffmpeg writes with
// "-progress pipe:1" and publishes them as per-device gauges. It satisfies
// process.OutputHandler and ignores lines from any stream but stdout.
type FFmpegProgress struct {
	device string

	mu      sync.Mutex
	pending map[string]string
	blocks  int
}

// NewFFmpegProgress creates a collector for the given sink device.
func NewFFmpegProgress(device string) *FFmpegProgress {
	return &FFmpegProgress{
		device:  device,
		pending: make(map[string]string),
	}
}

// HandleLine accumulates one progress line. A "progress=" line closes the block.
func (f *FFmpegProgress) HandleLine(source, line string) {
	if source != "stdout" {
		return
	}
	line = strings.TrimSpace(line)
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending[strings.TrimSpace(key)] = strings.TrimSpace(value)
	if key == "progress" {
		f.flush(f.pending)
		f.pending = make(map[string]string)
		f.blocks++
	}
}

// Blocks returns how many complete progress reports were seen.
func (f *FFmpegProgress) Blocks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks
}

// Close drops the device's progress series.
func (f *FFmpegProgress) Close() {
	metrics.DeleteStreamProgress(f.device)
}

func (f *FFmpegProgress) flush(data map[string]string) {
	if fps, err := strconv.ParseFloat(data["fps"], 64); err == nil {
		metrics.SetFFmpegFPS(f.device, fps)
	}
	if frames, err := strconv.ParseFloat(data["frame"], 64); err == nil {
		metrics.SetFFmpegFrames(f.device, frames)
	}
	if dropped, err := strconv.ParseFloat(data["drop_frames"], 64); err == nil {
		metrics.SetFFmpegDroppedFrames(f.device, dropped)
	}
	if dup, err := strconv.ParseFloat(data["dup_frames"], 64); err == nil {
		metrics.SetFFmpegDuplicateFrames(f.device, dup)
	}
	speedStr := strings.TrimSuffix(data["speed"], "x")
	if speed, err := strconv.ParseFloat(strings.TrimSpace(speedStr), 64); err == nil {
		metrics.SetFFmpegSpeed(f.device, speed)
	}
}
