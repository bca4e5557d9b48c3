package media

import (
	"context"

	"github.com/rcn8397/v4l2loopback-tricks/internal/probe"
)

// Prober is the probe capability the library depends on.
type Prober interface {
	Probe(ctx context.Context, path string) (probe.Info, error)
}

// CachingProber memoizes probe results on the registry entry so each source
// is probed at most once while registered.
type CachingProber struct {
	Registry *Registry
	Prober   Prober
}

// Probe returns the cached Info for path or probes and stores it.
func (c *CachingProber) Probe(ctx context.Context, path string) (probe.Info, error) {
	if info, ok := c.Registry.Info(path); ok {
		return info, nil
	}
	info, err := c.Prober.Probe(ctx, path)
	if err != nil {
		return probe.Info{}, err
	}
	c.Registry.AttachInfo(path, info)
	return info, nil
}

// ProbeDuration returns the duration of path in seconds.
func (c *CachingProber) ProbeDuration(ctx context.Context, path string) (float64, error) {
	info, err := c.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	if info.Duration <= 0 {
		return 0, &probe.ProbeError{Path: path, Reason: "unknown duration"}
	}
	return info.Duration, nil
}
