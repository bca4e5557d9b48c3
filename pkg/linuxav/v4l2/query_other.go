//go:build !linux

package v4l2

// QueryCapability always fails outside Linux.
func QueryCapability(string) (Capability, error) {
	return Capability{}, ErrUnsupported
}
