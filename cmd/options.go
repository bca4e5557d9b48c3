// Package cmd holds the command line: the control daemon and the one-shot
// streaming, library and diagnostic subcommands.
package cmd

import (
	"github.com/rcn8397/v4l2loopback-tricks/internal/artifacts"
	"github.com/rcn8397/v4l2loopback-tricks/internal/config"
	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Global switches
	Verbose bool `help:"Log at debug level" short:"v" default:"false"`
	Loop    bool `help:"Loop the source (dir: replay the whole list)" short:"l" default:"false" toml:"stream.loop" env:"STREAM_LOOP"`

	// Sink settings
	Device string `help:"Loopback sink device" short:"o" default:"/dev/video20" toml:"stream.device" env:"STREAM_DEVICE"`
	Blind  bool   `help:"Discard transcoder output" default:"false" toml:"stream.blind" env:"STREAM_BLIND"`

	// External tools
	Transcoder string `help:"Path to the ffmpeg binary" default:"ffmpeg" toml:"tools.ffmpeg" env:"TOOLS_FFMPEG"`
	Prober     string `help:"Path to the ffprobe binary, defaults to the one next to ffmpeg" default:"" toml:"tools.ffprobe" env:"TOOLS_FFPROBE"`

	// Library settings
	Library  string `help:"Media directory scanned when the daemon starts" default:"" toml:"library.root" env:"LIBRARY_ROOT"`
	CacheDir string `help:"Icon and preview cache directory" default:"" toml:"library.cache_dir" env:"LIBRARY_CACHE_DIR"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings, disabled while either is empty
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Observability settings
	MetricsEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings; per-module levels come from the [logging] table
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

// Tools returns the external binaries to run.
func (o *Options) Tools() ffmpeg.Tools {
	return ffmpeg.Tools{FFmpeg: o.Transcoder, FFprobe: o.Prober}.WithDefaults()
}

// Layout returns the artifact cache layout.
func (o *Options) Layout() artifacts.Layout {
	return artifacts.NewLayout(o.CacheDir)
}

// LoggingConfig merges the flag levels with the module levels of the
// config file's [logging] table.
func (o *Options) LoggingConfig() logging.Config {
	cfg := config.LoadLoggingConfig(o.Config)
	if o.LoggingLevel != "" {
		cfg.Level = o.LoggingLevel
	}
	if o.LoggingFormat != "" {
		cfg.Format = o.LoggingFormat
	}
	return cfg
}
