package v4l2

import (
	"errors"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCapabilityEffective(t *testing.T) {
	tests := []struct {
		name       string
		cap        Capability
		wantOutput bool
		wantCap    bool
	}{
		{
			name:       "loopback with device caps",
			cap:        Capability{Capabilities: CapDeviceCaps | CapVideoCapture | CapVideoOutput, DeviceCaps: CapVideoOutput | CapStreaming},
			wantOutput: true,
		},
		{
			name:    "webcam",
			cap:     Capability{Capabilities: CapVideoCapture | CapStreaming},
			wantCap: true,
		},
		{
			name:       "legacy driver without device caps",
			cap:        Capability{Capabilities: CapVideoCapture | CapVideoOutput},
			wantOutput: true,
			wantCap:    true,
		},
		{
			name: "metadata node",
			cap:  Capability{Capabilities: CapDeviceCaps | CapVideoCapture, DeviceCaps: CapStreaming},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cap.CanOutput(); got != tt.wantOutput {
				t.Errorf("CanOutput() = %v, want %v", got, tt.wantOutput)
			}
			if got := tt.cap.CanCapture(); got != tt.wantCap {
				t.Errorf("CanCapture() = %v, want %v", got, tt.wantCap)
			}
		})
	}
}

func TestIsLoopback(t *testing.T) {
	if !(Capability{Driver: "v4l2 loopback"}).IsLoopback() {
		t.Error("v4l2 loopback driver not recognised")
	}
	if (Capability{Driver: "uvcvideo"}).IsLoopback() {
		t.Error("uvcvideo reported as loopback")
	}
}

func TestCstr(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("uvcvideo\x00\x00\x00"), "uvcvideo"},
		{[]byte("full"), "full"},
		{[]byte{0, 'x'}, ""},
	}
	for _, tt := range tests {
		if got := cstr(tt.in); got != tt.want {
			t.Errorf("cstr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQueryCapabilityMissingDevice(t *testing.T) {
	_, err := QueryCapability(filepath.Join(t.TempDir(), "video99"))
	if err == nil {
		t.Fatal("expected error for missing device")
	}
	if runtime.GOOS != "linux" && !errors.Is(err, ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}
