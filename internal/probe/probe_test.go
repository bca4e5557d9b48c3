package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

const sampleOutput = `{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720,
     "nb_frames": "1200", "avg_frame_rate": "30/1", "duration": "40.000000"}
  ],
  "format": {"duration": "40.020000"}
}`

// fakeProbe writes a shell script that prints output and exits with code.
func fakeProbe(t *testing.T, output string, code int) string {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "out.json")
	if err := os.WriteFile(data, []byte(output), 0o644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat " + data + "\n"
	if code != 0 {
		script += "echo 'simulated failure' >&2\nexit " + strconv.Itoa(code) + "\n"
	}
	bin := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin
}

func TestProbe(t *testing.T) {
	p := New(fakeProbe(t, sampleOutput, 0))

	info, err := p.Probe(context.Background(), "/media/a.mp4")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	want := Info{Width: 1280, Height: 720, FrameCount: 1200, Duration: 40, Codec: "h264", FrameRate: 30}
	if info != want {
		t.Errorf("Probe() = %+v, want %+v", info, want)
	}
}

func TestProbeIsRepeatable(t *testing.T) {
	p := New(fakeProbe(t, sampleOutput, 0))
	ctx := context.Background()

	first, err := p.Probe(ctx, "/media/a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Probe(ctx, "/media/a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("repeated probes differ: %+v vs %+v", first, second)
	}

	d1, _ := p.ProbeDuration(ctx, "/media/a.mp4")
	d2, _ := p.ProbeDuration(ctx, "/media/a.mp4")
	if d1 != d2 || d1 != 40 {
		t.Errorf("durations = %v, %v; want 40", d1, d2)
	}
}

func TestParseFallbacks(t *testing.T) {
	raw := `{"streams":[{"codec_type":"video","width":640,"height":480,"avg_frame_rate":"30000/1001"}],
	"format":{"duration":"10.01"}}`

	info, err := parse("/media/b.mkv", []byte(raw))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if info.Duration != 10.01 {
		t.Errorf("Duration = %v, want format duration 10.01", info.Duration)
	}
	if info.FrameCount != 300 {
		t.Errorf("FrameCount = %d, want 300 derived from rate and duration", info.FrameCount)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"garbage", "not json", "unparsable ffprobe output"},
		{"audio only", `{"streams":[{"codec_type":"audio"}]}`, "no video stream"},
		{"no dimensions", `{"streams":[{"codec_type":"video"}]}`, "video stream has no dimensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse("/media/x", []byte(tt.raw))
			var probeErr *ProbeError
			if !errors.As(err, &probeErr) {
				t.Fatalf("error = %v, want *ProbeError", err)
			}
			if probeErr.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", probeErr.Reason, tt.reason)
			}
		})
	}

	_, err := parse("/media/x", []byte(`{"streams":[]}`))
	if !errors.Is(err, ErrNoVideoStream) {
		t.Errorf("error = %v, want ErrNoVideoStream", err)
	}
}

func TestProbeToolFailure(t *testing.T) {
	p := New(fakeProbe(t, "", 1))

	_, err := p.Probe(context.Background(), "/media/missing.mp4")
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("error = %v, want *ProbeError", err)
	}
	if probeErr.Reason != "simulated failure" {
		t.Errorf("Reason = %q, want stderr text", probeErr.Reason)
	}
}

func TestProbeMissingBinary(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "nope"))
	if _, err := p.Probe(context.Background(), "/media/a.mp4"); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestProbeDurationUnknown(t *testing.T) {
	p := New(fakeProbe(t, `{"streams":[{"codec_type":"video","width":2,"height":2}]}`, 0))
	if _, err := p.ProbeDuration(context.Background(), "/media/still.png"); err == nil {
		t.Fatal("expected error for unknown duration")
	}
}
