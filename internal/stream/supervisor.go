package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
	"github.com/rcn8397/v4l2loopback-tricks/internal/metrics/collectors"
	"github.com/rcn8397/v4l2loopback-tricks/internal/probe"
	"github.com/rcn8397/v4l2loopback-tricks/internal/process"
)

// Handle is one running transcoder as the session sees it.
type Handle interface {
	PID() int
	IsAlive() bool
	Blind() bool
	ReadLine() (string, bool)
	Done() <-chan struct{}
	ExitCode() int
	Stop() error
}

// Launcher starts a transcoder for a target.
type Launcher interface {
	Launch(ctx context.Context, t Target) (Handle, error)
}

// Prober reads source metadata before a file is streamed.
type Prober interface {
	Probe(ctx context.Context, path string) (probe.Info, error)
}

// Supervisor launches ffmpeg for a target. Output is mirrored to the
// "ffmpeg" logger and progress reports feed the per-device metrics.
type Supervisor struct {
	Tools ffmpeg.Tools
	// Prober, when set, checks file and overlay sources before spawning.
	Prober Prober
	// Blind discards all transcoder output.
	Blind bool
	// QueueSize and ReadTimeout tune the diagnostic line queue.
	QueueSize   int
	ReadTimeout time.Duration
	Logger      logging.Logger
}

// NewSupervisor returns a Supervisor for the given tools.
func NewSupervisor(tools ffmpeg.Tools, prober Prober) *Supervisor {
	return &Supervisor{
		Tools:  tools.WithDefaults(),
		Prober: prober,
		Logger: logging.GetLogger("stream"),
	}
}

// Launch validates t, probes file sources and starts the transcoder.
func (s *Supervisor) Launch(ctx context.Context, t Target) (Handle, error) {
	logger := s.Logger
	if logger == nil {
		logger = logging.GetLogger("stream")
	}

	display := ""
	if t.Mode == ffmpeg.ModeRegion {
		display = ResolveDisplay(t.Display, logger)
	}
	args, err := ffmpeg.BuildStreamArgs(t.params(display))
	if err != nil {
		return nil, err
	}

	if s.Prober != nil && t.Mode != ffmpeg.ModeRegion {
		info, err := s.Prober.Probe(ctx, t.Source)
		if err != nil {
			return nil, err
		}
		logger.Info("Source probed",
			"source", t.Source,
			"width", info.Width,
			"height", info.Height,
			"duration", info.Duration)
	}

	bin := s.Tools.WithDefaults().FFmpeg
	argv := append([]string{bin}, args...)
	logger.Debug("Launching transcoder", "command", ffmpeg.FormatCommand(bin, args))

	progress := collectors.NewFFmpegProgress(t.Device)
	opts := process.Options{
		ID:          t.Device,
		Args:        argv,
		Blind:       s.Blind,
		QueueSize:   s.QueueSize,
		ReadTimeout: s.ReadTimeout,
		Logger:      logging.GetLogger("process"),
	}
	if !s.Blind {
		opts.OutputLogger = logging.GetLogger("ffmpeg")
		opts.LogParser = ffmpeg.ParseLogLevel
		opts.OutputHandler = progress
	}

	proc, err := process.Start(opts)
	if err != nil {
		return nil, err
	}
	return &supervised{Process: proc, progress: progress}, nil
}

// supervised drops the progress series when the process is stopped.
type supervised struct {
	*process.Process
	progress *collectors.FFmpegProgress
}

func (s *supervised) Stop() error {
	err := s.Process.Stop()
	s.progress.Close()
	if err != nil {
		return fmt.Errorf("stop transcoder: %w", err)
	}
	return nil
}
