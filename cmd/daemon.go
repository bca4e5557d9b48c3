package cmd

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rcn8397/v4l2loopback-tricks/internal/api"
	"github.com/rcn8397/v4l2loopback-tricks/internal/artifacts"
	"github.com/rcn8397/v4l2loopback-tricks/internal/config"
	"github.com/rcn8397/v4l2loopback-tricks/internal/devices"
	"github.com/rcn8397/v4l2loopback-tricks/internal/events"
	"github.com/rcn8397/v4l2loopback-tricks/internal/jobs"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
	"github.com/rcn8397/v4l2loopback-tricks/internal/metrics"
	"github.com/rcn8397/v4l2loopback-tricks/internal/metrics/exporters"
	"github.com/rcn8397/v4l2loopback-tricks/internal/probe"
	"github.com/rcn8397/v4l2loopback-tricks/internal/stream"
)

// Daemon is the long-running controller behind the root command: one
// stream session, the job coordinator and the HTTP API, with settings
// hot-reloaded from the config file.
type Daemon struct {
	// PinDevice keeps Options.Device across settings reloads. Set it when
	// the device was given on the command line.
	PinDevice bool

	opts        *Options
	bus         *events.Bus
	registry    *media.Registry
	session     *stream.Session
	coordinator *jobs.Coordinator
	server      *api.Server
	watcher     *config.Watcher[config.Settings]
	library     string
	logger      logging.Logger

	mu      sync.Mutex
	pending *config.StreamSettings
	unsub   func()
}

// NewDaemon wires the components. Nothing runs until Start.
func NewDaemon(opts *Options) *Daemon {
	logger := logging.GetLogger("main")

	settings, err := config.LoadSettings(opts.Config)
	if err != nil {
		logger.Warn("Failed to load settings, using defaults", "error", err)
	}

	bus := events.New()
	api.ForwardLogs(bus)

	registry := media.NewRegistry()
	registry.OnChange(func(action, path string, count int) {
		metrics.SetSourcesRegistered(count)
		bus.Publish(events.SourcesChangedEvent{
			Count:     count,
			Action:    action,
			Path:      path,
			Timestamp: events.Now(),
		})
	})

	tools := opts.Tools()
	if err := tools.Check(); err != nil {
		logger.Warn("Transcoder tools not found, streams will fail to start", "error", err)
	}
	prober := &media.CachingProber{Registry: registry, Prober: probe.New(tools.FFprobe)}

	supervisor := stream.NewSupervisor(tools, prober)
	supervisor.Blind = opts.Blind

	target := settings.Stream.ApplyTo(stream.DefaultTarget())
	target.Device = opts.Device
	target.Loop = target.Loop || opts.Loop
	session := stream.NewSession(supervisor, target, bus)

	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = settings.Library.CacheDir
	}
	layout := artifacts.NewLayout(cacheDir)

	coordinator := jobs.NewCoordinator(jobs.Options{
		Registry: registry,
		Artifacts: jobs.ArtifactOptions{
			Layout:    layout,
			Generator: artifacts.NewGenerator(tools.FFmpeg),
			Prober:    prober,
		},
		Library:  settings.Library.LibraryOptions(),
		Reporter: jobs.BusReporter{Bus: bus},
	})

	apiOpts := &api.Options{
		AuthUsername: opts.AuthUsername,
		AuthPassword: opts.AuthPassword,
		Session:      session,
		Jobs:         coordinator,
		Registry:     registry,
		Devices:      devices.NewLister(),
		Layout:       layout,
		EventBus:     bus,
	}
	if opts.MetricsEnabled {
		apiOpts.PrometheusHandler = exporters.HTTPHandler()
	}

	library := opts.Library
	if library == "" {
		library = settings.Library.Root
	}

	d := &Daemon{
		opts:        opts,
		bus:         bus,
		registry:    registry,
		session:     session,
		coordinator: coordinator,
		server:      api.NewServer(apiOpts),
		library:     expandHome(library),
		logger:      logger,
	}
	d.watcher = config.NewConfigWatcher(opts.Config, config.LoadSettings, logging.GetLogger("config"))
	d.watcher.OnReload(d.applySettings)
	return d
}

// Start begins watching the settings, scans the library and serves the API
// until Stop. It returns the server's error, if any.
func (d *Daemon) Start() error {
	d.mu.Lock()
	d.unsub = d.bus.Subscribe(func(e events.StreamStateChangedEvent) {
		if e.To == string(stream.StateIdle) {
			d.applyPending()
		}
	})
	d.mu.Unlock()

	if err := d.watcher.Start(); err != nil {
		d.logger.Warn("Failed to start settings watcher, hot-reload disabled", "error", err)
	}

	if d.library != "" {
		if _, err := d.coordinator.StartDiscovery(d.library, false); err != nil {
			d.logger.Warn("Failed to scan library", "root", d.library, "error", err)
		}
	}

	return d.server.Start(d.opts.Port)
}

// Stop closes the API first so no new work arrives, then ends the stream
// and the jobs together.
func (d *Daemon) Stop(ctx context.Context) error {
	var errs []error
	if err := d.server.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(d.session.Shutdown)
	g.Go(func() error { return d.coordinator.Shutdown(gctx) })
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	if err := d.watcher.Stop(); err != nil {
		errs = append(errs, err)
	}
	d.mu.Lock()
	if d.unsub != nil {
		d.unsub()
	}
	d.mu.Unlock()
	return errors.Join(errs...)
}

// applySettings takes a reloaded settings file. Library settings apply at
// once; stream settings wait for the session to go idle.
func (d *Daemon) applySettings(s config.Settings) {
	d.coordinator.UpdateLibrary(s.Library.LibraryOptions())

	next := s.Stream
	if d.PinDevice {
		next.Device = d.opts.Device
	}
	d.mu.Lock()
	d.pending = &next
	d.mu.Unlock()
	d.applyPending()
}

func (d *Daemon) applyPending() {
	d.mu.Lock()
	pending := d.pending
	d.mu.Unlock()
	if pending == nil {
		return
	}

	err := d.session.Retarget(pending.ApplyTo)
	switch {
	case err == nil:
		d.mu.Lock()
		if d.pending == pending {
			d.pending = nil
		}
		d.mu.Unlock()
		d.logger.Info("Stream settings applied", "device", pending.Device)
	case errors.Is(err, stream.ErrSessionActive):
		d.logger.Info("Stream settings apply when the current stream ends", "device", pending.Device)
	default:
		d.logger.Warn("Failed to apply stream settings", "error", err)
	}
}
