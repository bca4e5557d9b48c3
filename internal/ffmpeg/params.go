package ffmpeg

import (
	"fmt"
	"strings"
)

// Mode selects how the transcoder feeds the sink device.
type Mode string

// Stream modes.
const (
	ModeFile    Mode = "file"    // play a media file into the device
	ModeOverlay Mode = "overlay" // play a media file with an image composited on top
	ModeRegion  Mode = "region"  // capture a desktop rectangle from an X display
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFile, ModeOverlay, ModeRegion:
		return m, nil
	case "":
		return ModeFile, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q", s)
	}
}

// Geometry is a capture rectangle in display pixels.
type Geometry struct {
	X      int `json:"x" toml:"x"`
	Y      int `json:"y" toml:"y"`
	Width  int `json:"width" toml:"width"`
	Height int `json:"height" toml:"height"`
}

// DefaultGeometry is the capture rectangle used when none is given.
var DefaultGeometry = Geometry{X: 0, Y: 0, Width: 640, Height: 480}

// Size renders the rectangle as WxH.
func (g Geometry) Size() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Validate rejects empty or negative rectangles.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("capture size must be positive, got %s", g.Size())
	}
	if g.X < 0 || g.Y < 0 {
		return fmt.Errorf("capture offset must not be negative, got %d,%d", g.X, g.Y)
	}
	return nil
}

// Overlay placement from the top-left corner of the video.
const (
	DefaultOverlayX = 10
	DefaultOverlayY = 10
)

// Pixel formats written to the loopback device.
const (
	PixelFormatFile   = "yuv420p"
	PixelFormatRegion = "yuyv422"
)

// StreamParams represents everything needed to build one device-feeding invocation.
type StreamParams struct {
	Mode   Mode
	Device string // /dev/video20

	// File and overlay modes
	Source   string
	Overlay  string // image composited over Source
	OverlayX int
	OverlayY int
	Loop     bool // restart the source at EOF

	// Region mode
	Display  string // :0 or :0.0
	Geometry Geometry
	Mirror   bool // horizontal flip

	PixelFormat string // empty selects the per-mode default
	LogLevel    string // ffmpeg -loglevel, default info
	Progress    bool   // emit -progress pipe:1 key=value reports on stdout
}

func (p *StreamParams) pixelFormat() string {
	if p.PixelFormat != "" {
		return p.PixelFormat
	}
	if p.Mode == ModeRegion {
		return PixelFormatRegion
	}
	return PixelFormatFile
}

func (p *StreamParams) validate() error {
	if p.Device == "" {
		return fmt.Errorf("device path is required")
	}
	switch p.Mode {
	case ModeFile:
		if p.Source == "" {
			return fmt.Errorf("source path is required")
		}
	case ModeOverlay:
		if p.Source == "" {
			return fmt.Errorf("source path is required")
		}
		if p.Overlay == "" {
			return fmt.Errorf("overlay path is required")
		}
	case ModeRegion:
		if p.Display == "" {
			return fmt.Errorf("display is required")
		}
		return p.Geometry.Validate()
	default:
		return fmt.Errorf("unknown stream mode %q", p.Mode)
	}
	return nil
}
