package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rcn8397/v4l2loopback-tricks/internal/artifacts"
	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingReporter keeps every event. onProgress, if set, runs inside
// Progress on the job goroutine.
type recordingReporter struct {
	mu         sync.Mutex
	steps      []int
	logs       []string
	results    []Result
	onProgress func(step int)
}

func (r *recordingReporter) Progress(_ uint64, _ Kind, step, _ int) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	hook := r.onProgress
	r.mu.Unlock()
	if hook != nil {
		hook(step)
	}
}

func (r *recordingReporter) Log(_ uint64, _ Kind, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
}

func (r *recordingReporter) Finished(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recordingReporter) finished() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

func libraryFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, p := range []string{
		"/lib/a.mp4",
		"/lib/b.txt",
		"/lib/.hidden.mp4",
		"/lib/sub/c.mkv",
		"/lib/.git/d.mp4",
	} {
		require.NoError(t, afero.WriteFile(fs, p, []byte("x"), 0o644))
	}
	return fs
}

func TestDiscoveryRegistersMatchingFiles(t *testing.T) {
	reg := media.NewRegistry()
	rep := &recordingReporter{}
	d := NewDescriptor(1, KindDiscovery, "/lib", rep)

	res := Execute(context.Background(), d, Discovery(DiscoveryOptions{
		Root:     "/lib",
		Fs:       libraryFs(t),
		Registry: reg,
	}))

	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, []string{"/lib/a.mp4", "/lib/sub/c.mkv"}, reg.Paths())
	assert.Equal(t, []int{1, 2, 3}, rep.steps, "one step per visible file")
	require.Len(t, rep.finished(), 1)
}

func TestDiscoveryAbortAfterFirstFile(t *testing.T) {
	reg := media.NewRegistry()
	rep := &recordingReporter{}
	d := NewDescriptor(2, KindDiscovery, "/lib", rep)
	rep.onProgress = func(step int) {
		if step == 1 {
			d.Abort()
		}
	}

	res := Execute(context.Background(), d, Discovery(DiscoveryOptions{
		Root:     "/lib",
		Fs:       libraryFs(t),
		Registry: reg,
	}))

	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, []string{"/lib/a.mp4"}, reg.Paths())

	results := rep.finished()
	require.Len(t, results, 1, "exactly one terminal event")
	assert.Equal(t, OutcomeAborted, results[0].Outcome)
}

func TestDiscoveryExcludesAndClears(t *testing.T) {
	reg := media.NewRegistry()
	reg.Add("/elsewhere/old.mp4")

	res := Execute(context.Background(), NewDescriptor(3, KindDiscovery, "/lib", nil), Discovery(DiscoveryOptions{
		Root:       "/lib",
		Fs:         libraryFs(t),
		Registry:   reg,
		Extensions: media.NewExtensionSet("mp4", "txt"),
		Exclude:    []string{"sub"},
		Clear:      true,
	}))

	require.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, []string{"/lib/a.mp4", "/lib/b.txt"}, reg.Paths())
}

func TestDiscoveryExcludesPathFragments(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, p := range []string{
		"/lib/a.mp4",
		"/lib/cache/thumbs/x.mp4",
		"/lib/cache/keep.mp4",
		"/lib/old_backup/y.mp4",
		"/lib/clips/backup_z.mp4",
	} {
		require.NoError(t, afero.WriteFile(fs, p, []byte("x"), 0o644))
	}

	reg := media.NewRegistry()
	res := Execute(context.Background(), NewDescriptor(6, KindDiscovery, "/lib", nil), Discovery(DiscoveryOptions{
		Root:     "/lib",
		Fs:       fs,
		Registry: reg,
		Exclude:  []string{"cache/thumbs", "backup"},
	}))

	require.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, []string{"/lib/a.mp4", "/lib/cache/keep.mp4"}, reg.Paths())
}

func TestExcludedMatchesBelowRootOnly(t *testing.T) {
	assert.False(t, excluded("/home/backup/media", "/home/backup/media/a.mp4", []string{"backup"}))
	assert.True(t, excluded("/media", "/media/a/backup/b.mp4", []string{"a/backup"}))
	assert.False(t, excluded("/media", "/media/a.mp4", nil))
}

func TestDiscoveryMissingRootFails(t *testing.T) {
	reg := media.NewRegistry()
	res := Execute(context.Background(), NewDescriptor(4, KindDiscovery, "/nope", nil), Discovery(DiscoveryOptions{
		Root:     "/nope",
		Fs:       afero.NewMemMapFs(),
		Registry: reg,
	}))

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Error(t, res.Err)
}

func TestExecuteRecoversPanic(t *testing.T) {
	rep := &recordingReporter{}
	res := Execute(context.Background(), NewDescriptor(5, KindIcons, "x", rep), func(context.Context, *Descriptor) error {
		panic("boom")
	})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorContains(t, res.Err, "boom")
	assert.Len(t, rep.finished(), 1)
}

func TestCanceledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Execute(ctx, NewDescriptor(6, KindDiscovery, "/lib", nil), Discovery(DiscoveryOptions{
		Root:     "/lib",
		Fs:       libraryFs(t),
		Registry: media.NewRegistry(),
	}))
	assert.Equal(t, OutcomeAborted, res.Outcome)
}

// fakeGenerator writes placeholder artifacts to fs.
type fakeGenerator struct {
	fs afero.Fs

	mu         sync.Mutex
	thumbnails []float64
	previews   []string
	failFor    string
}

func (g *fakeGenerator) GenerateThumbnail(_ context.Context, source, out string, at float64, _ int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if source == g.failFor {
		return &artifacts.GenerationError{Op: "thumbnail", Path: source, Err: errors.New("decode failed")}
	}
	g.thumbnails = append(g.thumbnails, at)
	return afero.WriteFile(g.fs, out, []byte("jpg"), 0o644)
}

func (g *fakeGenerator) AssemblePreview(_ context.Context, pattern, out string, _ int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.previews = append(g.previews, pattern)
	return afero.WriteFile(g.fs, out, []byte("gif"), 0o644)
}

func (g *fakeGenerator) thumbnailCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.thumbnails)
}

type fakeProber map[string]float64

func (p fakeProber) ProbeDuration(_ context.Context, path string) (float64, error) {
	d, ok := p[path]
	if !ok {
		return 0, fmt.Errorf("probe %s: unreadable", path)
	}
	return d, nil
}

func TestPreviewBuild(t *testing.T) {
	fs := afero.NewMemMapFs()
	gen := &fakeGenerator{fs: fs}
	layout := artifacts.Layout{Root: "/cache", Fs: fs}
	rep := &recordingReporter{}

	res := Execute(context.Background(), NewDescriptor(7, KindPreview, "/lib/a.mp4", rep), PreviewBuild(PreviewOptions{
		ArtifactOptions: ArtifactOptions{Layout: layout, Generator: gen, Prober: fakeProber{"/lib/a.mp4": 40}},
		Source:          "/lib/a.mp4",
		Increments:      4,
	}))

	require.Equal(t, OutcomeCompleted, res.Outcome, "err: %v", res.Err)
	require.Len(t, gen.thumbnails, 4)
	for i, at := range gen.thumbnails {
		assert.Greater(t, at, 0.0)
		assert.Less(t, at, 40.0)
		if i > 0 {
			assert.Greater(t, at, gen.thumbnails[i-1])
		}
	}
	assert.Equal(t, []string{"/cache/a.mp4/preview_%03d.jpg"}, gen.previews)
	assert.True(t, layout.Exists("/cache/a.mp4/a.mp4.gif"))
	assert.True(t, layout.Exists("/cache/a.mp4/preview_004.jpg"))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, rep.steps)
}

func TestPreviewBuildDropsFramesOfLongerBuild(t *testing.T) {
	fs := afero.NewMemMapFs()
	gen := &fakeGenerator{fs: fs}
	layout := artifacts.Layout{Root: "/cache", Fs: fs}
	src := "/lib/a.mp4"
	opts := PreviewOptions{
		ArtifactOptions: ArtifactOptions{Layout: layout, Generator: gen, Prober: fakeProber{src: 60}},
		Source:          src,
		Increments:      6,
	}

	res := Execute(context.Background(), NewDescriptor(12, KindPreview, src, nil), PreviewBuild(opts))
	require.Equal(t, OutcomeCompleted, res.Outcome, "err: %v", res.Err)
	require.True(t, layout.Exists(layout.PreviewFramePath(src, 6)))

	opts.Increments = 4
	res = Execute(context.Background(), NewDescriptor(13, KindPreview, src, nil), PreviewBuild(opts))
	require.Equal(t, OutcomeCompleted, res.Outcome, "err: %v", res.Err)

	assert.True(t, layout.Exists(layout.PreviewFramePath(src, 4)))
	assert.False(t, layout.Exists(layout.PreviewFramePath(src, 5)))
	assert.False(t, layout.Exists(layout.PreviewFramePath(src, 6)))
	assert.Len(t, gen.previews, 2, "the preview is rebuilt from the remaining frames")
}

func TestPreviewBuildFailsOnProbeError(t *testing.T) {
	fs := afero.NewMemMapFs()
	gen := &fakeGenerator{fs: fs}

	res := Execute(context.Background(), NewDescriptor(8, KindPreview, "/lib/bad.mp4", nil), PreviewBuild(PreviewOptions{
		ArtifactOptions: ArtifactOptions{Layout: artifacts.Layout{Root: "/cache", Fs: fs}, Generator: gen, Prober: fakeProber{}},
		Source:          "/lib/bad.mp4",
	}))

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, gen.thumbnailCount())
}

func TestPreviewBatchSkipsFailures(t *testing.T) {
	fs := afero.NewMemMapFs()
	gen := &fakeGenerator{fs: fs, failFor: "/lib/b.mp4"}
	layout := artifacts.Layout{Root: "/cache", Fs: fs}

	res := Execute(context.Background(), NewDescriptor(9, KindPreview, "/lib", nil), PreviewBatch(PreviewOptions{
		ArtifactOptions: ArtifactOptions{Layout: layout, Generator: gen, Prober: fakeProber{"/lib/a.mp4": 10, "/lib/b.mp4": 10}},
		Increments:      2,
	}, []string{"/lib/a.mp4", "/lib/b.mp4"}))

	require.Equal(t, OutcomeCompleted, res.Outcome)
	assert.True(t, layout.Exists(layout.PreviewPath("/lib/a.mp4")))
	assert.False(t, layout.Exists(layout.PreviewPath("/lib/b.mp4")))
}

func TestIconBuildKeepsExistingIcon(t *testing.T) {
	root := t.TempDir()
	fs := afero.NewOsFs()
	layout := artifacts.Layout{Root: root, Fs: fs}
	src := "/lib/a.mp4"

	require.NoError(t, layout.Ensure(src))
	icon := layout.IconPath(src)
	require.NoError(t, os.WriteFile(icon, []byte("old"), 0o644))
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(icon, past, past))

	gen := &fakeGenerator{fs: fs}
	opts := IconOptions{
		ArtifactOptions: ArtifactOptions{Layout: layout, Generator: gen, Prober: fakeProber{src: 100}},
		Sources:         []string{src},
	}

	res := Execute(context.Background(), NewDescriptor(10, KindIcons, src, nil), IconBuild(opts))
	require.Equal(t, OutcomeCompleted, res.Outcome)

	info, err := os.Stat(icon)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past), "icon was rewritten")
	assert.Zero(t, gen.thumbnailCount())

	opts.Overwrite = true
	res = Execute(context.Background(), NewDescriptor(11, KindIcons, src, nil), IconBuild(opts))
	require.Equal(t, OutcomeCompleted, res.Outcome)
	require.Equal(t, []float64{10}, gen.thumbnails, "icon is taken at a tenth of the duration")

	data, err := os.ReadFile(filepath.Clean(icon))
	require.NoError(t, err)
	assert.Equal(t, "jpg", string(data))
}

func TestIconBuildSkipsUnprobeableSources(t *testing.T) {
	fs := afero.NewMemMapFs()
	gen := &fakeGenerator{fs: fs}
	layout := artifacts.Layout{Root: "/cache", Fs: fs}
	rep := &recordingReporter{}

	res := Execute(context.Background(), NewDescriptor(12, KindIcons, "library", rep), IconBuild(IconOptions{
		ArtifactOptions: ArtifactOptions{Layout: layout, Generator: gen, Prober: fakeProber{"/lib/good.mp4": 20}},
		Sources:         []string{"/lib/bad.mp4", "/lib/good.mp4"},
	}))

	require.Equal(t, OutcomeCompleted, res.Outcome)
	assert.True(t, layout.Exists(layout.IconPath("/lib/good.mp4")))
	assert.False(t, layout.Exists(layout.IconPath("/lib/bad.mp4")))
	assert.Equal(t, []int{1, 2}, rep.steps)
	assert.Contains(t, rep.logs, "Icons ready for 1 of 2 sources")
}
