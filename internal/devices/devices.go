// Package devices lists video device nodes and checks loopback sinks.
package devices

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
	"github.com/rcn8397/v4l2loopback-tricks/pkg/linuxav/v4l2"
)

// DevDir is where device nodes are listed from.
const DevDir = "/dev"

var (
	// ErrDeviceNotFound is returned for sinks that do not exist.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrNotVideoDevice is returned for paths that are not video nodes.
	ErrNotVideoDevice = errors.New("not a video device")
	// ErrNotOutputDevice is returned for video nodes that cannot accept frames.
	ErrNotOutputDevice = errors.New("device does not accept video output")
)

// Device is one video node.
type Device struct {
	Path     string `json:"path" example:"/dev/video20" doc:"Device node"`
	Name     string `json:"name,omitempty" example:"Dummy video device (0x0000)" doc:"Card name reported by the driver"`
	Driver   string `json:"driver,omitempty" example:"v4l2 loopback" doc:"Kernel driver"`
	Loopback bool   `json:"loopback" doc:"Node belongs to v4l2loopback"`
	Output   bool   `json:"output" doc:"Node accepts video output"`
	Capture  bool   `json:"capture" doc:"Node produces video"`
}

// QueryFunc reads a node's capabilities.
type QueryFunc func(path string) (v4l2.Capability, error)

// Lister enumerates video nodes.
type Lister struct {
	Fs  afero.Fs
	Dir string
	// Query enriches each node; nil skips enrichment.
	Query  QueryFunc
	Logger logging.Logger
}

// NewLister returns a Lister over /dev that queries capabilities.
func NewLister() *Lister {
	return &Lister{
		Fs:     afero.NewOsFs(),
		Dir:    DevDir,
		Query:  v4l2.QueryCapability,
		Logger: logging.GetLogger("devices"),
	}
}

// List returns every entry of Dir whose name contains "video", in natural
// order (video2 before video10).
func (l *Lister) List() ([]Device, error) {
	dir := l.dir()
	entries, err := afero.ReadDir(l.fs(), dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	names := lo.FilterMap(entries, func(e os.FileInfo, _ int) (string, bool) {
		return e.Name(), !e.IsDir() && strings.Contains(e.Name(), "video")
	})
	slices.SortFunc(names, naturalCompare)

	return lo.Map(names, func(name string, _ int) Device {
		return l.describe(filepath.Join(dir, name))
	}), nil
}

// Paths returns the device paths List would report.
func (l *Lister) Paths() ([]string, error) {
	devs, err := l.List()
	if err != nil {
		return nil, err
	}
	return lo.Map(devs, func(d Device, _ int) string { return d.Path }), nil
}

// ValidateSink checks that path exists, is a video node and, when
// capabilities can be read, accepts output.
func (l *Lister) ValidateSink(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrDeviceNotFound)
	}
	ok, err := afero.Exists(l.fs(), path)
	if err != nil || !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
	}
	if !strings.Contains(filepath.Base(path), "video") {
		return fmt.Errorf("%w: %s", ErrNotVideoDevice, path)
	}
	if l.Query == nil {
		return nil
	}
	c, err := l.Query(path)
	if err != nil {
		// Permissions or an unsupported platform; the transcoder reports
		// the real problem when it opens the node.
		l.logger().Debug("Capability query failed", "path", path, "error", err)
		return nil
	}
	if !c.CanOutput() {
		return fmt.Errorf("%w: %s (%s)", ErrNotOutputDevice, path, c.Driver)
	}
	return nil
}

func (l *Lister) describe(path string) Device {
	d := Device{Path: path}
	if l.Query == nil {
		return d
	}
	c, err := l.Query(path)
	if err != nil {
		l.logger().Debug("Capability query failed", "path", path, "error", err)
		return d
	}
	d.Name = c.Card
	d.Driver = c.Driver
	d.Loopback = c.IsLoopback()
	d.Output = c.CanOutput()
	d.Capture = c.CanCapture()
	return d
}

func (l *Lister) fs() afero.Fs {
	if l.Fs == nil {
		return afero.NewOsFs()
	}
	return l.Fs
}

func (l *Lister) dir() string {
	if l.Dir == "" {
		return DevDir
	}
	return l.Dir
}

func (l *Lister) logger() logging.Logger {
	if l.Logger == nil {
		return logging.GetLogger("devices")
	}
	return l.Logger
}

// naturalCompare orders names by their text prefix, then numeric suffix.
func naturalCompare(a, b string) int {
	pa, na := splitNumericSuffix(a)
	pb, nb := splitNumericSuffix(b)
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	if na != nb {
		if na < nb {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func splitNumericSuffix(s string) (string, int) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, -1
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, -1
	}
	return s[:i], n
}
