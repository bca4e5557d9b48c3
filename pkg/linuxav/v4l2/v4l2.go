// Package v4l2 queries Video4Linux2 device capabilities without cgo.
//
// Only VIDIOC_QUERYCAP is bound. It is enough to tell a loopback sink from
// a capture-only camera:
//
//	c, err := v4l2.QueryCapability("/dev/video20")
//	if err == nil && c.CanOutput() {
//	    fmt.Printf("%s (%s) accepts frames\n", c.Card, c.Driver)
//	}
package v4l2

import (
	"bytes"
	"errors"
)

// ErrUnsupported is returned on platforms without V4L2.
var ErrUnsupported = errors.New("v4l2 is not supported on this platform")

// Capability flags from videodev2.h.
const (
	CapVideoCapture = 0x00000001
	CapVideoOutput  = 0x00000002
	CapReadWrite    = 0x01000000
	CapStreaming    = 0x04000000
	CapDeviceCaps   = 0x80000000
)

// LoopbackDriver is the driver name reported by v4l2loopback.
const LoopbackDriver = "v4l2 loopback"

// Capability is the decoded VIDIOC_QUERYCAP result.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
}

// Effective returns the capabilities of the opened node. Drivers that set
// CapDeviceCaps report per-node flags separately from the whole device.
func (c Capability) Effective() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// CanOutput reports whether frames can be written to the node.
func (c Capability) CanOutput() bool { return c.Effective()&CapVideoOutput != 0 }

// CanCapture reports whether frames can be read from the node.
func (c Capability) CanCapture() bool { return c.Effective()&CapVideoCapture != 0 }

// IsLoopback reports whether the node belongs to v4l2loopback.
func (c Capability) IsLoopback() bool { return c.Driver == LoopbackDriver }

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
