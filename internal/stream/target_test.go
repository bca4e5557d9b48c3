package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
)

func TestTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Target)
		wantErr bool
	}{
		{"file", func(t *Target) { t.Source = "/m/a.mp4" }, false},
		{"file without source", func(*Target) {}, true},
		{"no device", func(t *Target) { t.Source = "/m/a.mp4"; t.Device = "" }, true},
		{"overlay", func(t *Target) { t.Mode = ffmpeg.ModeOverlay; t.Source = "/m/a.mp4"; t.Overlay = "/m/logo.png" }, false},
		{"overlay without image", func(t *Target) { t.Mode = ffmpeg.ModeOverlay; t.Source = "/m/a.mp4" }, true},
		{"region without display", func(t *Target) { t.Mode = ffmpeg.ModeRegion }, false},
		{"region zero size", func(t *Target) { t.Mode = ffmpeg.ModeRegion; t.Geometry = ffmpeg.Geometry{} }, true},
		{"unknown mode", func(t *Target) { t.Mode = "hologram"; t.Source = "/m/a.mp4" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := DefaultTarget()
			tt.modify(&target)
			err := target.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveDisplay(t *testing.T) {
	t.Setenv("DISPLAY", ":1")
	assert.Equal(t, ":2", ResolveDisplay(":2", nil))
	assert.Equal(t, ":1", ResolveDisplay("", nil))

	t.Setenv("DISPLAY", "")
	assert.Equal(t, FallbackDisplay, ResolveDisplay("", nil))
}

func TestTargetParams(t *testing.T) {
	target := Target{Device: "/dev/video20", Source: "/m/a.mp4", Loop: true}
	p := target.params("")

	assert.Equal(t, ffmpeg.ModeFile, p.Mode)
	assert.True(t, p.Loop)
	assert.True(t, p.Progress)
}
