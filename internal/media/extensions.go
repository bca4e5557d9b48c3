package media

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// ExtensionSet matches file names by extension, case-insensitively.
type ExtensionSet struct {
	exts map[string]struct{}
}

// NewExtensionSet builds a set from extensions with or without the leading dot.
func NewExtensionSet(exts ...string) ExtensionSet {
	normalized := lo.Map(exts, func(e string, _ int) string {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		return e
	})
	normalized = lo.Filter(normalized, func(e string, _ int) bool { return e != "" })
	return ExtensionSet{exts: lo.SliceToMap(normalized, func(e string) (string, struct{}) { return e, struct{}{} })}
}

// Match reports whether name ends in one of the set's extensions.
func (s ExtensionSet) Match(name string) bool {
	_, ok := s.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// List returns the extensions in sorted order.
func (s ExtensionSet) List() []string {
	out := lo.Keys(s.exts)
	slices.Sort(out)
	return out
}

// Len returns the number of extensions.
func (s ExtensionSet) Len() int { return len(s.exts) }

// DefaultExtensions is the set discovery uses unless configured otherwise.
var DefaultExtensions = NewExtensionSet(
	".flv", ".mp4", ".webm", ".mov", ".m4a", ".ogg", ".mkv", ".3gp",
	".asf", ".wma", ".mpg", ".divx", ".mpeg", ".wmv", ".vob", ".avi",
)

// ContainerExtensions covers every container family ffmpeg commonly reads.
var ContainerExtensions = NewExtensionSet(
	// MPEG-1/2
	".mpg", ".mpeg", ".mp1", ".mp2", ".mp3", ".m1v", ".m1a", ".m2a", ".mpa", ".mpv",
	// MPEG-4
	".mp4", ".m4a", ".m4p", ".m4b", ".m4r", ".m4v",
	// QuickTime
	".mov", ".qt",
	// RealMedia
	".rmvb",
	// WebM and Matroska
	".webm", ".mkv", ".mk3d", ".mka", ".mks",
	// Windows Media
	".wmv", ".asf", ".avi", ".wma",
	// Flash
	".flv", ".f4v", ".f4p", ".f4a", ".f4b",
	// Ogg
	".ogg", ".ogv", ".oga", ".ogx", ".ogm", ".spx", ".opus",
	// Others
	".3gp", ".divx", ".vob", ".m2ts", ".mts",
)

// ExtensionsByName resolves a configured set name ("default" or "all").
func ExtensionsByName(name string) ExtensionSet {
	if strings.EqualFold(name, "all") {
		return ContainerExtensions
	}
	return DefaultExtensions
}
