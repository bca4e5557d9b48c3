package jobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/spf13/afero"

	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
	"github.com/rcn8397/v4l2loopback-tricks/internal/metrics"
)

var (
	// ErrDiscoveryRunning is returned when a discovery is already in flight.
	ErrDiscoveryRunning = errors.New("discovery already running")
	// ErrJobNotFound is returned for unknown or finished job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrCoordinatorClosed is returned after Shutdown.
	ErrCoordinatorClosed = errors.New("coordinator is shut down")
	// ErrNotConfigured is returned for artifact jobs without a generator
	// and prober.
	ErrNotConfigured = errors.New("artifact generation is not configured")
)

// LibraryOptions are the hot-reloadable library settings.
type LibraryOptions struct {
	Extensions        media.ExtensionSet
	Exclude           []string
	AutoIcons         bool
	AutoPreview       bool
	PreviewIncrements int
}

// Options configures a Coordinator.
type Options struct {
	Registry  *media.Registry
	Fs        afero.Fs
	Artifacts ArtifactOptions
	Library   LibraryOptions
	Reporter  Reporter
	Logger    logging.Logger
}

// Coordinator starts jobs on their own goroutines, keeps at most one
// discovery running against the registry and joins everything on Shutdown.
type Coordinator struct {
	registry  *media.Registry
	fs        afero.Fs
	artifacts ArtifactOptions
	reporter  Reporter
	logger    logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	library   LibraryOptions
	jobs      map[uint64]*Descriptor
	nextID    uint64
	discovery uint64
	closed    bool
}

// NewCoordinator creates a coordinator. Registry is required.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Registry == nil {
		panic("jobs: Options.Registry is required")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Reporter == nil {
		opts.Reporter = NopReporter{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("jobs")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		registry:  opts.Registry,
		fs:        opts.Fs,
		artifacts: opts.Artifacts,
		reporter:  opts.Reporter,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		library:   opts.Library,
		jobs:      make(map[uint64]*Descriptor),
	}
}

// Registry returns the registry jobs work against.
func (c *Coordinator) Registry() *media.Registry { return c.registry }

// StartDiscovery walks root into the registry. Only one discovery may run at
// a time.
func (c *Coordinator) StartDiscovery(root string, clear bool) (uint64, error) {
	lib := c.Library()
	task := Discovery(DiscoveryOptions{
		Root:       root,
		Fs:         c.fs,
		Registry:   c.registry,
		Extensions: lib.Extensions,
		Exclude:    lib.Exclude,
		Clear:      clear,
	})
	return c.start(KindDiscovery, root, task, c.afterDiscovery)
}

// StartPreview builds the animated preview of one source.
func (c *Coordinator) StartPreview(source string, overwrite bool) (uint64, error) {
	return c.start(KindPreview, source, PreviewBuild(c.previewOptions(source, overwrite)), nil)
}

// StartIcons builds icons for sources, or for the whole registry when
// sources is empty.
func (c *Coordinator) StartIcons(sources []string, overwrite bool) (uint64, error) {
	if len(sources) == 0 {
		sources = c.registry.Paths()
	}
	opts := c.artifacts
	opts.Overwrite = overwrite
	target := "library"
	if len(sources) == 1 {
		target = sources[0]
	}
	return c.start(KindIcons, target, IconBuild(IconOptions{ArtifactOptions: opts, Sources: sources}), nil)
}

// Start runs an arbitrary task under the coordinator.
func (c *Coordinator) Start(kind Kind, target string, task Task) (uint64, error) {
	if kind == KindDiscovery {
		return 0, fmt.Errorf("use StartDiscovery for %s jobs", kind)
	}
	return c.start(kind, target, task, nil)
}

func (c *Coordinator) previewOptions(source string, overwrite bool) PreviewOptions {
	opts := c.artifacts
	opts.Overwrite = overwrite
	return PreviewOptions{
		ArtifactOptions: opts,
		Source:          source,
		Increments:      c.Library().PreviewIncrements,
	}
}

func (c *Coordinator) start(kind Kind, target string, task Task, then func(Result)) (uint64, error) {
	if (kind == KindPreview || kind == KindIcons) && (c.artifacts.Generator == nil || c.artifacts.Prober == nil) {
		return 0, fmt.Errorf("%s job: %w", kind, ErrNotConfigured)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrCoordinatorClosed
	}
	if kind == KindDiscovery && c.discovery != 0 {
		c.mu.Unlock()
		return 0, ErrDiscoveryRunning
	}
	c.nextID++
	d := NewDescriptor(c.nextID, kind, target, c.reporter)
	c.jobs[d.id] = d
	if kind == KindDiscovery {
		c.discovery = d.id
	}
	c.wg.Add(1)
	c.mu.Unlock()

	metrics.JobStarted(string(kind))
	c.logger.Info("Job started", logging.JobIDKey, d.id, "kind", string(kind), "target", target)

	go func() {
		defer c.wg.Done()
		res := Execute(c.ctx, d, task)
		metrics.JobFinished(string(res.Kind), string(res.Outcome))

		c.mu.Lock()
		delete(c.jobs, d.id)
		if c.discovery == d.id {
			c.discovery = 0
		}
		c.mu.Unlock()

		if then != nil {
			then(res)
		}
	}()
	return d.id, nil
}

// afterDiscovery chains icon and preview jobs when the library asks for them.
func (c *Coordinator) afterDiscovery(res Result) {
	if res.Outcome != OutcomeCompleted {
		return
	}
	lib := c.Library()
	sources := c.registry.Paths()
	if len(sources) == 0 {
		return
	}
	if lib.AutoIcons {
		if _, err := c.StartIcons(sources, false); err != nil {
			c.logger.Warn("Auto icons not started", "error", err)
		}
	}
	if lib.AutoPreview {
		task := PreviewBatch(c.previewOptions("", false), sources)
		if _, err := c.start(KindPreview, res.Target, task, nil); err != nil {
			c.logger.Warn("Auto previews not started", "error", err)
		}
	}
}

// Abort requests cancellation of one job.
func (c *Coordinator) Abort(id uint64) error {
	c.mu.Lock()
	d, ok := c.jobs[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	d.Abort()
	c.logger.Info("Job abort requested", logging.JobIDKey, id)
	return nil
}

// AbortAll requests cancellation of every running job.
func (c *Coordinator) AbortAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.jobs {
		d.Abort()
	}
}

// Wait blocks until every job, including chained ones, has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// List returns the running jobs ordered by id.
func (c *Coordinator) List() []Info {
	c.mu.Lock()
	out := make([]Info, 0, len(c.jobs))
	for _, d := range c.jobs {
		out = append(out, d.Info())
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b Info) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// DiscoveryRunning reports whether a discovery job is in flight.
func (c *Coordinator) DiscoveryRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discovery != 0
}

// Library returns the current library settings.
func (c *Coordinator) Library() LibraryOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.library
}

// UpdateLibrary replaces the library settings. Running jobs keep the
// settings they started with.
func (c *Coordinator) UpdateLibrary(lib LibraryOptions) {
	c.mu.Lock()
	c.library = lib
	c.mu.Unlock()
	c.logger.Info("Library settings updated",
		"extensions", lib.Extensions.Len(),
		"auto_icons", lib.AutoIcons,
		"auto_preview", lib.AutoPreview)
}

// Shutdown refuses new jobs, aborts the running ones and waits for them
// until ctx is done.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.AbortAll()
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
