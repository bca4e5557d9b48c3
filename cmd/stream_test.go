package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcn8397/v4l2loopback-tricks/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// exitedHandle is a transcoder that has already finished its source.
type exitedHandle struct {
	done chan struct{}
}

func newExitedHandle() *exitedHandle {
	h := &exitedHandle{done: make(chan struct{})}
	close(h.done)
	return h
}

func (h *exitedHandle) PID() int                 { return 1 }
func (h *exitedHandle) IsAlive() bool            { return false }
func (h *exitedHandle) Blind() bool              { return true }
func (h *exitedHandle) ReadLine() (string, bool) { return "", false }
func (h *exitedHandle) Done() <-chan struct{}    { return h.done }
func (h *exitedHandle) ExitCode() int            { return 0 }
func (h *exitedHandle) Stop() error              { return nil }

type scriptedLauncher struct {
	mu      sync.Mutex
	sources []string
	fail    map[string]bool
	onCall  func(n int)
}

func (l *scriptedLauncher) Launch(_ context.Context, t stream.Target) (stream.Handle, error) {
	l.mu.Lock()
	l.sources = append(l.sources, t.Source)
	n := len(l.sources)
	l.mu.Unlock()

	if l.onCall != nil {
		l.onCall(n)
	}
	if l.fail[t.Source] {
		return nil, errors.New("no video stream")
	}
	return newExitedHandle(), nil
}

func (l *scriptedLauncher) launched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sources...)
}

func newTestSession(t *testing.T, l stream.Launcher) *stream.Session {
	t.Helper()
	s := stream.NewSession(l, stream.DefaultTarget(), nil)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestPlayAllSkipsFailedSources(t *testing.T) {
	l := &scriptedLauncher{fail: map[string]bool{"/media/b.mp4": true}}
	s := newTestSession(t, l)
	opts := &Options{Device: "/dev/video21"}

	err := playAll(context.Background(), s, opts, []string{"/media/a.mp4", "/media/b.mp4", "/media/c.mp4"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"/media/a.mp4", "/media/b.mp4", "/media/c.mp4"}, l.launched())
	assert.Equal(t, "/dev/video21", s.Target().Device)
}

func TestPlayAllFailsWhenNothingStarts(t *testing.T) {
	l := &scriptedLauncher{fail: map[string]bool{"/media/a.mp4": true, "/media/b.mp4": true}}
	s := newTestSession(t, l)

	err := playAll(context.Background(), s, &Options{Device: "/dev/video20", Loop: true}, []string{"/media/a.mp4", "/media/b.mp4"}, testLogger())
	require.Error(t, err)
	assert.Len(t, l.launched(), 2, "a pass without any start is not repeated")
}

func TestPlayAllLoopsUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &scriptedLauncher{onCall: func(n int) {
		if n == 5 {
			cancel()
		}
	}}
	s := newTestSession(t, l)

	err := playAll(ctx, s, &Options{Device: "/dev/video20", Loop: true}, []string{"/media/a.mp4", "/media/b.mp4"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"/media/a.mp4", "/media/b.mp4", "/media/a.mp4", "/media/b.mp4", "/media/a.mp4"}, l.launched())
}

func TestPlayRejectsIncompleteTarget(t *testing.T) {
	s := newTestSession(t, &scriptedLauncher{})

	err := play(context.Background(), s, stream.DefaultTarget())
	assert.Error(t, err, "file mode without a source")
}

func TestLoggingConfigMergesModules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"warn\"\nstream = \"debug\"\n"), 0o644))

	cfg := (&Options{Config: path, LoggingLevel: "error", LoggingFormat: "json"}).LoggingConfig()
	assert.Equal(t, "error", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "debug", cfg.Modules["stream"])
}

func TestToolsDefaultProbeNextToTranscoder(t *testing.T) {
	tools := (&Options{Transcoder: "/opt/ffmpeg/bin/ffmpeg"}).Tools()
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", tools.FFmpeg)
	assert.Equal(t, "/opt/ffmpeg/bin/ffprobe", tools.FFprobe)
}

func TestAbsPathExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "clips", "a.mp4"), absPath("~/clips/a.mp4"))
	assert.True(t, filepath.IsAbs(absPath("a.mp4")))
}
