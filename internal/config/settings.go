package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/rcn8397/v4l2loopback-tricks/internal/artifacts"
	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
	"github.com/rcn8397/v4l2loopback-tricks/internal/jobs"
	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
	"github.com/rcn8397/v4l2loopback-tricks/internal/stream"
)

// Settings are the daemon's reloadable settings. They share the options
// file, under the [stream] and [library] tables.
type Settings struct {
	Stream  StreamSettings  `toml:"stream"`
	Library LibrarySettings `toml:"library"`
}

// StreamSettings describe the default stream target.
type StreamSettings struct {
	Device  string `toml:"device" json:"device"`
	Display string `toml:"display,omitempty" json:"display,omitempty"`
	Mirror  bool   `toml:"mirror" json:"mirror"`
	Loop    bool   `toml:"loop" json:"loop"`
	X       int    `toml:"x" json:"x"`
	Y       int    `toml:"y" json:"y"`
	Width   int    `toml:"width" json:"width"`
	Height  int    `toml:"height" json:"height"`
}

// LibrarySettings control discovery and artifact generation.
type LibrarySettings struct {
	Root              string   `toml:"root,omitempty" json:"root,omitempty"`
	CacheDir          string   `toml:"cache_dir,omitempty" json:"cache_dir,omitempty"`
	Extensions        string   `toml:"extensions" json:"extensions"` // "default" or "all"
	Exclude           []string `toml:"exclude,omitempty" json:"exclude,omitempty"`
	AutoIcons         bool     `toml:"auto_icons" json:"auto_icons"`
	AutoPreview       bool     `toml:"auto_preview" json:"auto_preview"`
	PreviewIncrements int      `toml:"preview_increments" json:"preview_increments"`
}

// DefaultSettings mirrors a fresh install: /dev/video20, automatic icons
// and previews, four preview frames.
func DefaultSettings() Settings {
	g := ffmpeg.DefaultGeometry
	return Settings{
		Stream: StreamSettings{
			Device: stream.DefaultDevice,
			X:      g.X,
			Y:      g.Y,
			Width:  g.Width,
			Height: g.Height,
		},
		Library: LibrarySettings{
			CacheDir:          artifacts.DefaultRoot(),
			Extensions:        "default",
			Exclude:           []string{"node_modules"},
			AutoIcons:         true,
			AutoPreview:       true,
			PreviewIncrements: jobs.DefaultPreviewIncrements,
		},
	}
}

// LoadSettings reads path over the defaults. A missing file is not an error.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return DefaultSettings(), fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// Validate rejects settings the daemon cannot apply.
func (s Settings) Validate() error {
	if s.Stream.Device == "" {
		return errors.New("stream.device must not be empty")
	}
	if err := s.Stream.Geometry().Validate(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	switch s.Library.Extensions {
	case "", "default", "all":
	default:
		return fmt.Errorf("library.extensions must be \"default\" or \"all\", got %q", s.Library.Extensions)
	}
	if s.Library.PreviewIncrements < 0 {
		return fmt.Errorf("library.preview_increments must not be negative")
	}
	return nil
}

// Geometry returns the capture rectangle.
func (s StreamSettings) Geometry() ffmpeg.Geometry {
	return ffmpeg.Geometry{X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}
}

// ApplyTo copies the sink and capture settings onto t, keeping its mode
// and source.
func (s StreamSettings) ApplyTo(t stream.Target) stream.Target {
	t.Device = s.Device
	t.Display = s.Display
	t.Mirror = s.Mirror
	t.Loop = s.Loop
	t.Geometry = s.Geometry()
	return t
}

// LibraryOptions converts the settings for the job coordinator.
func (l LibrarySettings) LibraryOptions() jobs.LibraryOptions {
	return jobs.LibraryOptions{
		Extensions:        media.ExtensionsByName(l.Extensions),
		Exclude:           l.Exclude,
		AutoIcons:         l.AutoIcons,
		AutoPreview:       l.AutoPreview,
		PreviewIncrements: l.PreviewIncrements,
	}
}

// SaveSettings writes s to path atomically, keeping any other tables
// already in the file.
func SaveSettings(path string, s Settings) error {
	doc := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	encoded, err := toml.Marshal(s)
	if err != nil {
		return err
	}
	var fresh map[string]any
	if err := toml.Unmarshal(encoded, &fresh); err != nil {
		return err
	}
	doc["stream"] = fresh["stream"]
	doc["library"] = fresh["library"]

	out, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, out, 0o644)
}
