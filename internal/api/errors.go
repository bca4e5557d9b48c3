package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/rcn8397/v4l2loopback-tricks/internal/devices"
	"github.com/rcn8397/v4l2loopback-tricks/internal/jobs"
	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
	"github.com/rcn8397/v4l2loopback-tricks/internal/probe"
	"github.com/rcn8397/v4l2loopback-tricks/internal/stream"
)

// toHTTPError maps domain errors onto huma status errors.
func toHTTPError(err error) error {
	var probeErr *probe.ProbeError
	var startErr *stream.StartError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, media.ErrSourceNotFound),
		errors.Is(err, jobs.ErrJobNotFound),
		errors.Is(err, devices.ErrDeviceNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, stream.ErrSessionActive),
		errors.Is(err, jobs.ErrDiscoveryRunning):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, devices.ErrNotVideoDevice),
		errors.Is(err, devices.ErrNotOutputDevice),
		errors.As(err, &probeErr):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, stream.ErrSessionClosed),
		errors.Is(err, jobs.ErrCoordinatorClosed),
		errors.Is(err, jobs.ErrNotConfigured):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.As(err, &startErr):
		return huma.Error500InternalServerError("Failed to start stream", err)
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
