package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
)

// DiscoveryOptions configures a discovery walk.
type DiscoveryOptions struct {
	Root       string
	Fs         afero.Fs
	Registry   *media.Registry
	Extensions media.ExtensionSet
	// Exclude lists path fragments, e.g. "backup" or "cache/thumbs". Any
	// file or directory whose path below Root contains one is skipped.
	Exclude []string
	// Clear empties the registry before walking.
	Clear bool
}

// Discovery walks Root and registers every file whose extension matches.
// Hidden entries are skipped. Each visited file is one unit of work; an
// abort stops the walk before the next file, keeping what was registered.
func Discovery(opts DiscoveryOptions) Task {
	return func(ctx context.Context, d *Descriptor) error {
		if opts.Registry == nil {
			return fmt.Errorf("discovery: no registry")
		}
		fsys := opts.Fs
		if fsys == nil {
			fsys = afero.NewOsFs()
		}
		exts := opts.Extensions
		if exts.Len() == 0 {
			exts = media.DefaultExtensions
		}
		root := filepath.Clean(opts.Root)
		fragments := lo.Compact(lo.Map(opts.Exclude, func(f string, _ int) string {
			return filepath.ToSlash(strings.Trim(f, "/"))
		}))

		if _, err := fsys.Stat(root); err != nil {
			return fmt.Errorf("discovery: %w", err)
		}
		if opts.Clear {
			opts.Registry.Clear()
		}

		d.Logf("Searching %s", root)
		visited, found := 0, 0

		err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
			if path == root {
				return err
			}
			if err != nil {
				d.Logf("Skipping %s: %v", path, err)
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			name := info.Name()
			skip := strings.HasPrefix(name, ".") || excluded(root, path, fragments)
			if info.IsDir() {
				if skip {
					return filepath.SkipDir
				}
				return nil
			}
			if skip {
				return nil
			}

			if err := checkpoint(ctx, d); err != nil {
				return err
			}

			visited++
			if exts.Match(name) {
				if opts.Registry.Add(path) {
					found++
				}
			}
			d.Step(visited, 0)
			return nil
		})
		if err != nil {
			d.Logf("Stopped after %d files, %d sources found", visited, found)
			return err
		}

		d.Logf("Found %d sources in %d files", found, visited)
		return nil
	}
}

// excluded reports whether path, taken relative to root, contains one of
// the fragments.
func excluded(root, path string, fragments []string) bool {
	if len(fragments) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	return lo.ContainsBy(fragments, func(f string) bool {
		return strings.Contains(rel, f)
	})
}
