package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/spf13/afero"

	"github.com/rcn8397/v4l2loopback-tricks/internal/api/models"
	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
	"github.com/rcn8397/v4l2loopback-tricks/internal/stream"
)

func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/stream",
		Summary:     "Stream Status",
		Description: "Current session state, target and transcoder progress",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(_ context.Context, _ *struct{}) (*models.StreamStatusResponse, error) {
		session, err := s.session()
		if err != nil {
			return nil, err
		}
		return &models.StreamStatusResponse{Body: session.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-stream-target",
		Method:      http.MethodPut,
		Path:        "/api/stream/target",
		Summary:     "Set Stream Target",
		Description: "Change the device, mode or source used by the next stream run. Rejected while a stream is running.",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409, 422, 503},
	}, func(_ context.Context, input *models.StreamTargetRequest) (*models.StreamStatusResponse, error) {
		session, err := s.session()
		if err != nil {
			return nil, err
		}
		target, err := s.applyTarget(session.Target(), input.Body)
		if err != nil {
			return nil, err
		}
		if err := session.Reconfigure(target); err != nil {
			return nil, toHTTPError(err)
		}
		s.logger.Info("Stream target updated", "device", target.Device, "mode", string(target.Mode), "source", target.Source)
		return &models.StreamStatusResponse{Body: session.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-stream",
		Method:      http.MethodPost,
		Path:        "/api/stream/start",
		Summary:     "Start Stream",
		Description: "Start feeding the sink. An optional source selects a registered file first.",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 422, 500, 503},
	}, func(_ context.Context, input *models.StreamStartRequest) (*models.StreamStatusResponse, error) {
		session, err := s.session()
		if err != nil {
			return nil, err
		}
		if session.IsStreaming() {
			return nil, huma.Error409Conflict("Stream already started")
		}

		target := session.Target()
		if input.Body != nil && input.Body.Source != "" {
			path, err := s.resolveSource(input.Body.Source)
			if err != nil {
				return nil, toHTTPError(err)
			}
			target.Source = path
			if target.Mode == ffmpeg.ModeRegion {
				target.Mode = ffmpeg.ModeFile
			}
		}
		if err := target.Validate(); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		if err := session.Reconfigure(target); err != nil {
			return nil, toHTTPError(err)
		}
		if err := session.Stream(); err != nil {
			return nil, toHTTPError(err)
		}
		return &models.StreamStatusResponse{Body: session.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-stream",
		Method:      http.MethodPost,
		Path:        "/api/stream/stop",
		Summary:     "Stop Stream",
		Description: "Stop the running transcoder",
		Tags:        []string{"stream"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 503},
	}, func(_ context.Context, _ *struct{}) (*models.StreamStatusResponse, error) {
		session, err := s.session()
		if err != nil {
			return nil, err
		}
		if !session.IsStreaming() {
			return nil, huma.Error409Conflict("Nothing currently streaming")
		}
		if err := session.Stop(); err != nil {
			return nil, toHTTPError(err)
		}
		return &models.StreamStatusResponse{Body: session.Status()}, nil
	})
}

func (s *Server) session() (StreamController, error) {
	if s.options.Session == nil {
		return nil, huma.Error503ServiceUnavailable("stream session is not available")
	}
	return s.options.Session, nil
}

// applyTarget merges a partial target update into t and validates it.
func (s *Server) applyTarget(t stream.Target, in models.StreamTargetData) (stream.Target, error) {
	if in.Device != "" && in.Device != t.Device {
		if s.options.Devices != nil {
			if err := s.options.Devices.ValidateSink(in.Device); err != nil {
				return t, toHTTPError(err)
			}
		}
		t.Device = in.Device
	}
	if in.Mode != "" {
		mode, err := ffmpeg.ParseMode(in.Mode)
		if err != nil {
			return t, huma.Error400BadRequest(err.Error())
		}
		t.Mode = mode
	}
	if in.Source != "" {
		path, err := s.resolveSource(in.Source)
		if err != nil {
			return t, toHTTPError(err)
		}
		t.Source = path
	}
	if in.Overlay != "" {
		t.Overlay = in.Overlay
	}
	if in.Geometry != nil {
		t.Geometry = *in.Geometry
	}
	if in.Display != "" {
		t.Display = in.Display
	}
	if in.Mirror != nil {
		t.Mirror = *in.Mirror
	}
	if in.Loop != nil {
		t.Loop = *in.Loop
	}

	if err := t.Validate(); err != nil {
		return t, huma.Error422UnprocessableEntity(err.Error())
	}
	return t, nil
}

// resolveSource turns a registry index, a registered file name or a path
// into an absolute path.
func (s *Server) resolveSource(key string) (string, error) {
	src, _, err := s.options.Registry.Lookup(key)
	if err == nil {
		return src.Path, nil
	}
	if !errors.Is(err, media.ErrSourceNotFound) {
		return "", err
	}
	if ok, _ := afero.Exists(s.fs, key); ok && filepath.IsAbs(key) {
		return filepath.Clean(key), nil
	}
	return "", fmt.Errorf("%w: %s", media.ErrSourceNotFound, key)
}
