package media

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcn8397/v4l2loopback-tricks/internal/probe"
)

func TestRegistryAddDeduplicates(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Add("/media/a.mp4"))
	assert.True(t, r.Add("/media/b.mkv"))
	assert.False(t, r.Add("/media/a.mp4"))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"/media/a.mp4", "/media/b.mkv"}, r.Paths())
}

func TestRegistryRemoveKeepsOrder(t *testing.T) {
	r := NewRegistry()
	for _, p := range []string{"/m/a.mp4", "/m/b.mp4", "/m/c.mp4"} {
		r.Add(p)
	}

	require.True(t, r.Remove("/m/b.mp4"))
	assert.False(t, r.Remove("/m/b.mp4"))
	assert.Equal(t, []string{"/m/a.mp4", "/m/c.mp4"}, r.Paths())

	src, i, err := r.Lookup("/m/c.mp4")
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Equal(t, "c.mp4", src.Name)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Add("/m/one.mp4")
	r.Add("/m/two.webm")

	tests := []struct {
		name    string
		key     string
		want    string
		wantIdx int
		wantErr bool
	}{
		{"index", "1", "/m/two.webm", 1, false},
		{"index with spaces", " 0 ", "/m/one.mp4", 0, false},
		{"path", "/m/one.mp4", "/m/one.mp4", 0, false},
		{"basename", "two.webm", "/m/two.webm", 1, false},
		{"index out of range", "5", "", -1, true},
		{"negative index", "-1", "", -1, true},
		{"unknown name", "three.mp4", "", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, i, err := r.Lookup(tt.key)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrSourceNotFound), "err = %v", err)
				assert.Equal(t, -1, i)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, src.Path)
			assert.Equal(t, tt.wantIdx, i)
		})
	}
}

func TestRegistryClearNotifies(t *testing.T) {
	r := NewRegistry()
	var actions []string
	r.OnChange(func(action, _ string, count int) {
		actions = append(actions, action)
		if action == "cleared" {
			assert.Equal(t, 0, count)
		}
	})

	r.Add("/m/a.mp4")
	r.Add("/m/a.mp4")
	r.Remove("/m/a.mp4")
	r.Add("/m/b.mp4")
	r.Clear()

	assert.Equal(t, []string{"added", "removed", "added", "cleared"}, actions)
	assert.Equal(t, 0, r.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Add("/m/a.mp4")
	r.AttachInfo("/m/a.mp4", probe.Info{Width: 640, Height: 480})

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	require.NotNil(t, snap[0].Info)
	snap[0].Info.Width = 1
	snap[0].Path = "/elsewhere"

	info, ok := r.Info("/m/a.mp4")
	require.True(t, ok)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, []string{"/m/a.mp4"}, r.Paths())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := range 50 {
				r.Add("/m/" + string(rune('a'+i)) + "/" + string(rune('a'+j%26)) + ".mp4")
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				_ = r.Snapshot()
				_, _, _ = r.Lookup("0")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4*26, r.Len())
}

func TestExtensionSet(t *testing.T) {
	set := NewExtensionSet("mp4", ".MKV", "", " webm ")

	assert.Equal(t, 3, set.Len())
	assert.Equal(t, []string{".mkv", ".mp4", ".webm"}, set.List())
	assert.True(t, set.Match("clip.MP4"))
	assert.True(t, set.Match("/a/b/movie.mkv"))
	assert.False(t, set.Match("notes.txt"))
	assert.False(t, set.Match("mp4"))
}

func TestDefaultExtensions(t *testing.T) {
	assert.Equal(t, 16, DefaultExtensions.Len())
	assert.True(t, DefaultExtensions.Match("a.divx"))
	assert.False(t, DefaultExtensions.Match("a.ogv"))
	assert.True(t, ContainerExtensions.Match("a.ogv"))
	assert.Equal(t, ContainerExtensions.List(), ExtensionsByName("ALL").List())
	assert.Equal(t, DefaultExtensions.List(), ExtensionsByName("").List())
}

type countingProber struct {
	mu    sync.Mutex
	calls int
	info  probe.Info
	err   error
}

func (c *countingProber) Probe(context.Context, string) (probe.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.info, c.err
}

func TestCachingProberMemoizes(t *testing.T) {
	r := NewRegistry()
	r.Add("/m/a.mp4")
	inner := &countingProber{info: probe.Info{Width: 320, Height: 240, Duration: 12.5}}
	p := &CachingProber{Registry: r, Prober: inner}

	first, err := p.Probe(context.Background(), "/m/a.mp4")
	require.NoError(t, err)
	second, err := p.Probe(context.Background(), "/m/a.mp4")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	d, err := p.ProbeDuration(context.Background(), "/m/a.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, d, 1e-9)
	assert.Equal(t, 1, inner.calls)
}

func TestCachingProberErrors(t *testing.T) {
	r := NewRegistry()
	r.Add("/m/a.mp4")
	inner := &countingProber{err: &probe.ProbeError{Path: "/m/a.mp4", Reason: "unreadable"}}
	p := &CachingProber{Registry: r, Prober: inner}

	_, err := p.Probe(context.Background(), "/m/a.mp4")
	var probeErr *probe.ProbeError
	require.ErrorAs(t, err, &probeErr)

	_, err = p.Probe(context.Background(), "/m/a.mp4")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls, "failures are not cached")

	inner.err = nil
	inner.info = probe.Info{Width: 1, Height: 1}
	_, err = p.ProbeDuration(context.Background(), "/m/a.mp4")
	require.ErrorAs(t, err, &probeErr)
}
