//go:build linux

package v4l2

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// vidiocQuerycap is _IOR('V', 0, struct v4l2_capability). The struct is
// 104 bytes on every Linux architecture.
const vidiocQuerycap = 0x80685600

type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

var _ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}

// QueryCapability opens path and issues VIDIOC_QUERYCAP.
func QueryCapability(path string) (Capability, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return Capability{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var raw v4l2Capability
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), vidiocQuerycap, uintptr(unsafe.Pointer(&raw))); errno != 0 {
		return Capability{}, fmt.Errorf("VIDIOC_QUERYCAP %s: %w", path, errno)
	}

	return Capability{
		Driver:       cstr(raw.driver[:]),
		Card:         cstr(raw.card[:]),
		BusInfo:      cstr(raw.busInfo[:]),
		Version:      raw.version,
		Capabilities: raw.capabilities,
		DeviceCaps:   raw.deviceCaps,
	}, nil
}
