package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "v4l2tricks"

var (
	streamActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "active",
		Help:      "Whether a stream is feeding the sink device (1) or not (0)",
	}, []string{"device", "mode"})

	streamStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "starts_total",
		Help:      "Stream start attempts by result",
	}, []string{"result"})

	streamOutputLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "output_lines_total",
		Help:      "Diagnostic lines read from the transcoder",
	}, []string{"device"})

	ffmpegFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "fps",
		Help:      "Current FFmpeg output FPS",
	}, []string{"device"})

	ffmpegFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "frames",
		Help:      "Frames written to the sink by the current run",
	}, []string{"device"})

	ffmpegDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "dropped_frames_total",
		Help:      "Total dropped frames",
	}, []string{"device"})

	ffmpegDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "duplicate_frames_total",
		Help:      "Total duplicate frames",
	}, []string{"device"})

	ffmpegSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "processing_speed",
		Help:      "FFmpeg processing speed multiplier",
	}, []string{"device"})

	progressCache   = make(map[string]*StreamProgress)
	progressCacheMu sync.RWMutex
)

// StreamProgress holds the latest progress report for a sink device.
type StreamProgress struct {
	FPS             float64 `json:"fps" example:"30"`
	Frames          float64 `json:"frames" example:"1800"`
	DroppedFrames   float64 `json:"dropped_frames"`
	DuplicateFrames float64 `json:"duplicate_frames"`
	Speed           float64 `json:"speed" example:"1.01" doc:"Processing speed relative to real time"`
}

// SetStreamActive flips the active gauge for a device.
func SetStreamActive(device, mode string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	streamActive.WithLabelValues(device, mode).Set(v)
}

// IncStreamStart counts a start attempt. result is "ok" or "error".
func IncStreamStart(result string) {
	streamStarts.WithLabelValues(result).Inc()
}

// IncStreamOutputLines counts diagnostic lines read for a device.
func IncStreamOutputLines(device string) {
	streamOutputLines.WithLabelValues(device).Inc()
}

// SetFFmpegFPS sets the current FPS for a device.
func SetFFmpegFPS(device string, fps float64) {
	ffmpegFPS.WithLabelValues(device).Set(fps)
	updateCache(device, func(m *StreamProgress) { m.FPS = fps })
}

// SetFFmpegFrames sets the frame counter for a device.
func SetFFmpegFrames(device string, frames float64) {
	ffmpegFrames.WithLabelValues(device).Set(frames)
	updateCache(device, func(m *StreamProgress) { m.Frames = frames })
}

// SetFFmpegDroppedFrames sets the dropped frames count for a device.
func SetFFmpegDroppedFrames(device string, count float64) {
	ffmpegDroppedFrames.WithLabelValues(device).Set(count)
	updateCache(device, func(m *StreamProgress) { m.DroppedFrames = count })
}

// SetFFmpegDuplicateFrames sets the duplicate frames count for a device.
func SetFFmpegDuplicateFrames(device string, count float64) {
	ffmpegDuplicateFrames.WithLabelValues(device).Set(count)
	updateCache(device, func(m *StreamProgress) { m.DuplicateFrames = count })
}

// SetFFmpegSpeed sets the processing speed for a device.
func SetFFmpegSpeed(device string, speed float64) {
	ffmpegSpeed.WithLabelValues(device).Set(speed)
	updateCache(device, func(m *StreamProgress) { m.Speed = speed })
}

// DeleteStreamProgress removes the progress series for a device.
func DeleteStreamProgress(device string) {
	ffmpegFPS.DeleteLabelValues(device)
	ffmpegFrames.DeleteLabelValues(device)
	ffmpegDroppedFrames.DeleteLabelValues(device)
	ffmpegDuplicateFrames.DeleteLabelValues(device)
	ffmpegSpeed.DeleteLabelValues(device)

	progressCacheMu.Lock()
	delete(progressCache, device)
	progressCacheMu.Unlock()
}

// GetStreamProgress returns a copy of the latest progress for a device, or nil.
func GetStreamProgress(device string) *StreamProgress {
	progressCacheMu.RLock()
	defer progressCacheMu.RUnlock()
	if m, ok := progressCache[device]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateCache(device string, update func(*StreamProgress)) {
	progressCacheMu.Lock()
	defer progressCacheMu.Unlock()
	m, ok := progressCache[device]
	if !ok {
		m = &StreamProgress{}
		progressCache[device] = m
	}
	update(m)
}
