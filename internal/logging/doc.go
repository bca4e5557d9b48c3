// Package logging provides structured logging with per-module log levels.
//
// Every component asks for its own logger:
//
//	logger := logging.GetLogger("stream")
//	logger.Info("Stream started", "device", "/dev/video20")
//
// Records fan out to stdout (text or json), the systemd journal when
// journald is reachable, and an in-memory ring buffer served by the control
// API. Levels live in slog.LevelVar values, so Initialize and SetVerbose also
// retune loggers handed out earlier.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	ffmpeg = "warn"
//	jobs = "debug"
//
// Journal entries are tagged with the identifier v4l2tricks:
//
//	journalctl -t v4l2tricks MODULE=stream -f
package logging
