// Package stream owns the single streaming session that feeds a loopback
// device from a media file or a desktop region.
package stream

import (
	"fmt"
	"os"

	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
)

// DefaultDevice is the sink used when none is configured.
const DefaultDevice = "/dev/video20"

// FallbackDisplay is used for region capture when DISPLAY is unset.
const FallbackDisplay = ":0"

// Target describes what the next stream run feeds into which device. The
// session copies it at start, so changes never affect a running stream.
type Target struct {
	Device   string          `json:"device" example:"/dev/video20" doc:"Loopback sink device"`
	Mode     ffmpeg.Mode     `json:"mode" enum:"file,overlay,region" example:"file" doc:"Stream mode"`
	Source   string          `json:"source,omitempty" example:"/home/user/clip.mp4" doc:"Media file for file and overlay modes"`
	Overlay  string          `json:"overlay,omitempty" doc:"Image composited over the source in overlay mode"`
	Geometry ffmpeg.Geometry `json:"geometry" doc:"Capture rectangle for region mode"`
	Display  string          `json:"display,omitempty" example:":0" doc:"X display for region mode, defaults to $DISPLAY"`
	Mirror   bool            `json:"mirror,omitempty" doc:"Flip region captures horizontally"`
	Loop     bool            `json:"loop,omitempty" doc:"Restart the source at end of file"`
}

// DefaultTarget returns a file-mode target on the default device.
func DefaultTarget() Target {
	return Target{
		Device:   DefaultDevice,
		Mode:     ffmpeg.ModeFile,
		Geometry: ffmpeg.DefaultGeometry,
	}
}

// Validate checks the fields the target's mode requires. An empty display
// is accepted since it is resolved at start.
func (t Target) Validate() error {
	p := t.params(FallbackDisplay)
	if _, err := ffmpeg.BuildStreamArgs(p); err != nil {
		return fmt.Errorf("invalid stream target: %w", err)
	}
	return nil
}

// params converts the target into transcoder parameters.
func (t Target) params(display string) ffmpeg.StreamParams {
	mode := t.Mode
	if mode == "" {
		mode = ffmpeg.ModeFile
	}
	return ffmpeg.StreamParams{
		Mode:     mode,
		Device:   t.Device,
		Source:   t.Source,
		Overlay:  t.Overlay,
		Loop:     t.Loop,
		Display:  display,
		Geometry: t.Geometry,
		Mirror:   t.Mirror,
		Progress: true,
	}
}

// ResolveDisplay returns display, then $DISPLAY, then ":0" with a warning.
func ResolveDisplay(display string, logger logging.Logger) string {
	if display != "" {
		return display
	}
	if env := os.Getenv("DISPLAY"); env != "" {
		return env
	}
	if logger != nil {
		logger.Warn("DISPLAY is not set, capturing from fallback display", "display", FallbackDisplay)
	}
	return FallbackDisplay
}
