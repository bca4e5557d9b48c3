// Package jobs runs background work (media discovery, preview and icon
// generation) off the control path. Every job reports progress through a
// Reporter and ends with exactly one terminal outcome.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
)

// Kind identifies what a job does.
type Kind string

const (
	KindDiscovery Kind = "discovery"
	KindPreview   Kind = "preview"
	KindIcons     Kind = "icons"
)

// Outcome is how a job ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

// ErrAborted is returned by a task that observed an abort request. It is a
// terminal state, not a failure.
var ErrAborted = errors.New("job aborted")

// Result is the terminal record of a job.
type Result struct {
	ID      uint64
	Kind    Kind
	Target  string
	Outcome Outcome
	Err     error
	Elapsed time.Duration
}

// Reporter receives job events. Implementations must be safe for concurrent
// use since jobs run on their own goroutines.
type Reporter interface {
	Progress(id uint64, kind Kind, step, total int)
	Log(id uint64, kind Kind, msg string)
	Finished(r Result)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) Progress(uint64, Kind, int, int) {}
func (NopReporter) Log(uint64, Kind, string)        {}
func (NopReporter) Finished(Result)                 {}

// Info is a point-in-time view of a job for listings.
type Info struct {
	ID      uint64    `json:"id" example:"3" doc:"Job identifier"`
	Kind    Kind      `json:"kind" example:"discovery" doc:"Job kind"`
	Target  string    `json:"target" example:"/home/user/videos" doc:"Directory or source"`
	Step    int       `json:"step" doc:"Units completed"`
	Total   int       `json:"total,omitempty" doc:"Total units when known"`
	Aborted bool      `json:"aborted" doc:"Abort was requested"`
	Started time.Time `json:"started" doc:"Start time"`
}

// Descriptor is the handle a running task works through.
type Descriptor struct {
	id       uint64
	kind     Kind
	target   string
	started  time.Time
	reporter Reporter
	logger   logging.Logger

	aborted atomic.Bool
	step    atomic.Int64
	total   atomic.Int64
}

// NewDescriptor returns a descriptor for a job that has not started yet.
func NewDescriptor(id uint64, kind Kind, target string, reporter Reporter) *Descriptor {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Descriptor{
		id:       id,
		kind:     kind,
		target:   target,
		started:  time.Now(),
		reporter: reporter,
		logger:   logging.GetLogger("jobs").With(logging.JobIDKey, id, "kind", string(kind)),
	}
}

func (d *Descriptor) ID() uint64     { return d.id }
func (d *Descriptor) Kind() Kind     { return d.kind }
func (d *Descriptor) Target() string { return d.target }

// Abort requests cooperative cancellation. The task notices it at its next
// unit boundary.
func (d *Descriptor) Abort() { d.aborted.Store(true) }

// Aborted reports whether Abort was called.
func (d *Descriptor) Aborted() bool { return d.aborted.Load() }

// Step records progress and forwards it to the reporter. total may be 0 when
// unknown.
func (d *Descriptor) Step(step, total int) {
	d.step.Store(int64(step))
	d.total.Store(int64(total))
	d.reporter.Progress(d.id, d.kind, step, total)
}

// Logf sends a message to the reporter and the jobs logger.
func (d *Descriptor) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.logger.Debug(msg)
	d.reporter.Log(d.id, d.kind, msg)
}

// Info snapshots the descriptor.
func (d *Descriptor) Info() Info {
	return Info{
		ID:      d.id,
		Kind:    d.kind,
		Target:  d.target,
		Step:    int(d.step.Load()),
		Total:   int(d.total.Load()),
		Aborted: d.aborted.Load(),
		Started: d.started,
	}
}

// Task is the body of a job. It returns ErrAborted when it stops because of
// an abort request.
type Task func(ctx context.Context, d *Descriptor) error

// Execute runs task to completion on the calling goroutine and reports the
// terminal outcome exactly once.
func Execute(ctx context.Context, d *Descriptor, task Task) (res Result) {
	res = Result{ID: d.id, Kind: d.kind, Target: d.target}

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("job panicked: %v", r)
		}
		res.Elapsed = time.Since(d.started)
		d.logger.Info("Job finished", "outcome", string(res.Outcome), "elapsed", res.Elapsed, "error", res.Err)
		d.reporter.Finished(res)
	}()

	err := task(ctx, d)
	switch {
	case err == nil:
		res.Outcome = OutcomeCompleted
	case errors.Is(err, ErrAborted):
		res.Outcome = OutcomeAborted
	default:
		res.Outcome = OutcomeFailed
		res.Err = err
	}
	return res
}

// checkpoint is called at every unit boundary.
func checkpoint(ctx context.Context, d *Descriptor) error {
	if d.Aborted() {
		return ErrAborted
	}
	if ctx.Err() != nil {
		d.Abort()
		return ErrAborted
	}
	return nil
}
