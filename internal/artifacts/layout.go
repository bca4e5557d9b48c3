// Package artifacts generates and locates the per-source cache of icons,
// preview frames and animated previews.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Cache file names inside a source's directory.
const (
	IconName           = "icon.jpg"
	PreviewFramePrefix = "preview_"
	PreviewPatternName = "preview_%03d.jpg"
)

// DefaultRoot returns ~/.v4l2tricks.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".v4l2tricks"
	}
	return filepath.Join(home, ".v4l2tricks")
}

// Layout maps a source path to its cache files. Every source gets a
// directory named after its base name:
//
//	<root>/<basename>/icon.jpg
//	<root>/<basename>/preview_001.jpg ... preview_NNN.jpg
//	<root>/<basename>/<basename>.gif
type Layout struct {
	Root string
	Fs   afero.Fs // used for existence checks and directory creation
}

// NewLayout returns a Layout rooted at root on the OS filesystem.
func NewLayout(root string) Layout {
	if root == "" {
		root = DefaultRoot()
	}
	return Layout{Root: root, Fs: afero.NewOsFs()}
}

func (l Layout) fs() afero.Fs {
	if l.Fs == nil {
		return afero.NewOsFs()
	}
	return l.Fs
}

// Dir returns the cache directory for source.
func (l Layout) Dir(source string) string {
	return filepath.Join(l.Root, filepath.Base(source))
}

// IconPath returns the icon location for source.
func (l Layout) IconPath(source string) string {
	return filepath.Join(l.Dir(source), IconName)
}

// PreviewFramePath returns the i-th (1-based) preview frame for source.
func (l Layout) PreviewFramePath(source string, i int) string {
	return filepath.Join(l.Dir(source), fmt.Sprintf(PreviewFramePrefix+"%03d.jpg", i))
}

// PreviewPattern returns the image2 input pattern matching every preview frame.
func (l Layout) PreviewPattern(source string) string {
	return filepath.Join(l.Dir(source), PreviewPatternName)
}

// PreviewPath returns the animated preview location for source.
func (l Layout) PreviewPath(source string) string {
	base := filepath.Base(source)
	return filepath.Join(l.Dir(source), base+".gif")
}

// Ensure creates the cache directory for source.
func (l Layout) Ensure(source string) error {
	return l.fs().MkdirAll(l.Dir(source), 0o755)
}

// PrunePreviewFrames removes the preview frames of source numbered above
// keep, left from a build with more increments, and returns how many went.
func (l Layout) PrunePreviewFrames(source string, keep int) (int, error) {
	fsys := l.fs()
	matches, err := afero.Glob(fsys, filepath.Join(l.Dir(source), PreviewFramePrefix+"*.jpg"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		num := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), PreviewFramePrefix), ".jpg")
		i, err := strconv.Atoi(num)
		if err != nil || i <= keep {
			continue
		}
		if err := fsys.Remove(m); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Exists reports whether an artifact is already present.
func (l Layout) Exists(path string) bool {
	ok, err := afero.Exists(l.fs(), path)
	return err == nil && ok
}

// ReadFile returns the contents of an artifact.
func (l Layout) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(l.fs(), path)
}

// PreviewTimestamps returns n strictly increasing sample points inside
// (0, duration): the midpoints of n equal slices of the source.
func PreviewTimestamps(duration float64, n int) []float64 {
	if n <= 0 || duration <= 0 {
		return nil
	}
	step := duration / float64(n)
	ts := make([]float64, n)
	for i := range n {
		ts[i] = (float64(i) + 0.5) * step
	}
	return ts
}

// IconTimestamp is the offset the icon frame is taken from.
func IconTimestamp(duration float64) float64 {
	return duration * 0.10
}
