// Package api is the HTTP control surface of the daemon: stream control,
// the source library, background jobs, devices, logs and live events.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/spf13/afero"

	"github.com/rcn8397/v4l2loopback-tricks/internal/api/models"
	"github.com/rcn8397/v4l2loopback-tricks/internal/artifacts"
	"github.com/rcn8397/v4l2loopback-tricks/internal/devices"
	"github.com/rcn8397/v4l2loopback-tricks/internal/events"
	"github.com/rcn8397/v4l2loopback-tricks/internal/jobs"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
	"github.com/rcn8397/v4l2loopback-tricks/internal/stream"
	"github.com/rcn8397/v4l2loopback-tricks/internal/version"
)

// StreamController is the part of stream.Session the API drives.
type StreamController interface {
	Stream() error
	Stop() error
	Reconfigure(t stream.Target) error
	IsStreaming() bool
	Target() stream.Target
	Status() stream.Status
}

// JobController is the part of jobs.Coordinator the API drives.
type JobController interface {
	StartDiscovery(root string, clear bool) (uint64, error)
	StartPreview(source string, overwrite bool) (uint64, error)
	StartIcons(sources []string, overwrite bool) (uint64, error)
	Abort(id uint64) error
	AbortAll()
	List() []jobs.Info
}

// DeviceLister enumerates video nodes and checks sinks.
type DeviceLister interface {
	List() ([]devices.Device, error)
	ValidateSink(path string) error
}

// Options wires the server to the daemon's components.
type Options struct {
	AuthUsername string
	AuthPassword string

	Session  StreamController
	Jobs     JobController
	Registry *media.Registry
	Devices  DeviceLister
	Layout   artifacts.Layout
	EventBus *events.Bus
	// Fs is used to check files before they are registered. Defaults to the OS.
	Fs afero.Fs

	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// Server is the huma API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	eventBus   *events.Bus
	fs         afero.Fs
	logger     *slog.Logger
}

const authRealm = `Basic realm="v4l2tricks"`

// basicAuthMiddleware checks HTTP basic credentials on operations that
// declare security. SSE clients may pass the encoded pair as ?auth=.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	deny := func(ctx huma.Context, msg string, errs ...error) {
		ctx.SetHeader("WWW-Authenticate", authRealm)
		huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		encoded := ctx.Query("auth")
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				deny(ctx, "Invalid authentication type")
				return
			}
			encoded = header[len(prefix):]
		}
		if encoded == "" {
			deny(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			deny(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			deny(ctx, "Invalid credentials format")
			return
		}
		if subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			deny(ctx, "Invalid credentials")
			return
		}
		next(ctx)
	}
}

// NewServer builds the API on a Go 1.22+ pattern mux.
func NewServer(opts *Options) *Server {
	if opts.Registry == nil {
		opts.Registry = media.NewRegistry()
	}
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("v4l2loopback tricks API", version.String())
	config.Info.Description = "Control API for feeding media files and screen regions into v4l2loopback devices"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		eventBus: opts.EventBus,
		fs:       opts.Fs,
		logger:   logging.GetLogger("api"),
	}
	if server.eventBus == nil {
		server.eventBus = events.New()
	}
	if server.fs == nil {
		server.fs = afero.NewOsFs()
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called. It returns nil after a
// clean stop.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down. Open event streams are closed immediately.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		v := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   v.Version,
				GitCommit: v.GitCommit,
				BuildDate: v.BuildDate,
				BuildID:   v.BuildID,
				GoVersion: v.GoVersion,
				Compiler:  v.Compiler,
				Platform:  v.Platform,
			},
		}, nil
	})

	s.registerDeviceRoutes()
	s.registerStreamRoutes()
	s.registerSourceRoutes()
	s.registerJobRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
	s.registerMetricsRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
