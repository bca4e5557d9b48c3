package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcn8397/v4l2loopback-tricks/internal/events"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
	"github.com/rcn8397/v4l2loopback-tricks/internal/metrics"
)

// State is the session lifecycle position.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateStopping State = "stopping"
)

var (
	// ErrSessionActive is returned by Reconfigure while a stream is running.
	ErrSessionActive = errors.New("session is streaming")
	// ErrSessionClosed is returned by every operation after Shutdown.
	ErrSessionClosed = errors.New("session is shut down")
)

// StartError reports that a stream run could not be started. The session is
// back in the idle state when it is returned.
type StartError struct {
	Target Target
	Err    error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s stream on %s: %v", e.Target.Mode, e.Target.Device, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Status is a point-in-time view of the session.
type Status struct {
	State     State                   `json:"state" enum:"idle,starting,active,stopping" doc:"Session state"`
	Streaming bool                    `json:"streaming" doc:"A transcoder is running"`
	Target    Target                  `json:"target" doc:"Target of the current run, or of the next one while idle"`
	RunID     string                  `json:"run_id,omitempty" doc:"Identifier of the current run"`
	PID       int                     `json:"pid,omitempty" doc:"Transcoder process id"`
	StartedAt *time.Time              `json:"started_at,omitempty" doc:"Start of the current run"`
	LastError string                  `json:"last_error,omitempty" doc:"Why the last start failed"`
	LastExit  *int                    `json:"last_exit_code,omitempty" doc:"Exit code of the previous run"`
	Progress  *metrics.StreamProgress `json:"progress,omitempty" doc:"Latest transcoder progress report"`
}

type opKind int

const (
	opStream opKind = iota
	opStop
	opReconfigure
	opRetarget
	opShutdown
)

type request struct {
	op     opKind
	target Target
	apply  func(Target) Target
	reply  chan error
}

// Session runs one stream at a time on a dedicated goroutine. Every
// operation is serialized through that goroutine.
type Session struct {
	launcher Launcher
	bus      *events.Bus
	logger   logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	requests chan request
	loopDone chan struct{}

	mu        sync.RWMutex
	state     State
	target    Target
	running   Target
	handle    Handle
	runID     string
	startedAt time.Time
	lastErr   error
	lastExit  *int
	runDone   chan struct{}

	// loop-owned
	pumpDone chan struct{}
}

// NewSession starts the session goroutine. bus may be nil.
func NewSession(launcher Launcher, target Target, bus *events.Bus) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	s := &Session{
		launcher: launcher,
		bus:      bus,
		logger:   logging.GetLogger("stream"),
		ctx:      ctx,
		cancel:   cancel,
		requests: make(chan request),
		loopDone: make(chan struct{}),
		state:    StateIdle,
		target:   target,
		runDone:  idle,
	}
	go s.loop()
	return s
}

// Stream starts a run with the current target. It is a no-op while a
// stream is already active.
func (s *Session) Stream() error {
	return s.call(request{op: opStream})
}

// Stop ends the current run and returns once the transcoder and its
// readers are gone. It is a no-op while idle.
func (s *Session) Stop() error {
	return s.call(request{op: opStop})
}

// Reconfigure replaces the target. It fails with ErrSessionActive unless
// the session is idle.
func (s *Session) Reconfigure(t Target) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.call(request{op: opReconfigure, target: t})
}

// Retarget rewrites the idle target with apply. The result may be
// incomplete, e.g. a new sink before any source was chosen; the next
// Stream reports what is missing.
func (s *Session) Retarget(apply func(Target) Target) error {
	return s.call(request{op: opRetarget, apply: apply})
}

// Shutdown stops any run and ends the session goroutine. Further calls
// return ErrSessionClosed; Shutdown itself may be repeated.
func (s *Session) Shutdown() error {
	err := s.call(request{op: opShutdown})
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

func (s *Session) call(req request) error {
	req.reply = make(chan error, 1)
	select {
	case s.requests <- req:
	case <-s.loopDone:
		return ErrSessionClosed
	}
	return <-req.reply
}

// IsStreaming reports whether a run is active and its transcoder alive.
func (s *Session) IsStreaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateActive && s.handle != nil && s.handle.IsAlive()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Target returns the configured target.
func (s *Session) Target() Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

// RunDone returns a channel closed when the current run ends, whether by
// Stop or because the transcoder exited. It is already closed while idle.
func (s *Session) RunDone() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runDone
}

// Status snapshots the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:    s.state,
		Target:   s.target,
		RunID:    s.runID,
		LastExit: s.lastExit,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.handle != nil {
		st.Target = s.running
		st.Streaming = s.state == StateActive && s.handle.IsAlive()
		st.PID = s.handle.PID()
		started := s.startedAt
		st.StartedAt = &started
		st.Progress = metrics.GetStreamProgress(s.running.Device)
	}
	return st
}

func (s *Session) loop() {
	defer close(s.loopDone)

	for {
		var exited <-chan struct{}
		if h := s.currentHandle(); h != nil {
			exited = h.Done()
		}

		select {
		case req := <-s.requests:
			switch req.op {
			case opStream:
				req.reply <- s.start()
			case opStop:
				s.stop()
				req.reply <- nil
			case opReconfigure:
				req.reply <- s.reconfigure(req.target)
			case opRetarget:
				req.reply <- s.reconfigure(req.apply(s.Target()))
			case opShutdown:
				s.stop()
				s.cancel()
				s.logger.Info("Stream session shut down")
				req.reply <- nil
				return
			}
		case <-exited:
			s.finish()
		}
	}
}

func (s *Session) currentHandle() Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

func (s *Session) start() error {
	s.mu.RLock()
	h := s.handle
	if h != nil && h.IsAlive() {
		s.mu.RUnlock()
		s.logger.Debug("Stream already started")
		return nil
	}
	s.mu.RUnlock()

	// The transcoder exited but its output has not closed yet, e.g. a
	// child it left behind still holds the pipes. End that run first.
	if h != nil {
		s.stop()
	}

	s.mu.RLock()
	target := s.target
	s.mu.RUnlock()

	s.transition(StateStarting, target, "")

	h, err := s.launcher.Launch(s.ctx, target)
	if err != nil {
		metrics.IncStreamStart("failure")
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.transition(StateIdle, target, "")
		s.bus.Publish(events.StreamStartFailedEvent{
			Device:    target.Device,
			Mode:      string(target.Mode),
			Source:    target.Source,
			Error:     err.Error(),
			Timestamp: events.Now(),
		})
		s.logger.Error("Failed to start stream", "device", target.Device, "mode", string(target.Mode), "error", err)
		return &StartError{Target: target, Err: err}
	}

	runID := uuid.NewString()
	s.mu.Lock()
	s.handle = h
	s.running = target
	s.runID = runID
	s.startedAt = time.Now()
	s.lastErr = nil
	s.runDone = make(chan struct{})
	s.mu.Unlock()

	s.pumpDone = make(chan struct{})
	go s.pump(h, runID, target.Device, s.pumpDone)

	metrics.IncStreamStart("success")
	metrics.SetStreamActive(target.Device, string(target.Mode), true)
	s.transition(StateActive, target, runID)
	s.logger.Info("Stream started", logging.RunIDKey, runID, "device", target.Device, "mode", string(target.Mode), "source", target.Source, "pid", h.PID())
	return nil
}

// pump forwards diagnostic lines until the handle is done.
func (s *Session) pump(h Handle, runID, device string, done chan<- struct{}) {
	defer close(done)
	if h.Blind() {
		<-h.Done()
		return
	}
	publish := func(line string) {
		metrics.IncStreamOutputLines(device)
		s.bus.Publish(events.StreamOutputEvent{RunID: runID, Line: line, Timestamp: events.Now()})
	}

	// ReadLine waits up to its timeout while the transcoder runs. Once it
	// has exited ReadLine no longer waits, so block on Done instead.
	for h.IsAlive() {
		if line, ok := h.ReadLine(); ok {
			publish(line)
		}
	}
	<-h.Done()
	for {
		line, ok := h.ReadLine()
		if !ok {
			return
		}
		publish(line)
	}
}

// stop tears down the current run, if any.
func (s *Session) stop() {
	if s.currentHandle() == nil {
		return
	}
	s.mu.RLock()
	target, runID := s.running, s.runID
	s.mu.RUnlock()

	s.transition(StateStopping, target, runID)
	s.logger.Info("Stopping stream", logging.RunIDKey, runID, "device", target.Device)
	s.finish()
}

// finish clears a run whose transcoder is gone and returns to idle.
func (s *Session) finish() {
	h := s.currentHandle()
	if h == nil {
		return
	}
	// Stop is idempotent. After a natural exit it still releases the
	// pipes and drops the run's progress series.
	if err := h.Stop(); err != nil {
		s.logger.Warn("Transcoder did not stop cleanly", "error", err)
	}
	if s.pumpDone != nil {
		<-s.pumpDone
		s.pumpDone = nil
	}

	code := h.ExitCode()
	s.mu.Lock()
	target, runID := s.running, s.runID
	s.handle = nil
	s.runID = ""
	s.lastExit = &code
	runDone := s.runDone
	s.mu.Unlock()
	close(runDone)

	metrics.SetStreamActive(target.Device, string(target.Mode), false)
	s.transition(StateIdle, target, runID)
	s.logger.Info("Stream ended", logging.RunIDKey, runID, "device", target.Device, "exit_code", code)
}

func (s *Session) reconfigure(t Target) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.target = t
	s.mu.Unlock()
	s.logger.Info("Stream target changed", "device", t.Device, "mode", string(t.Mode), "source", t.Source)
	return nil
}

func (s *Session) transition(to State, t Target, runID string) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	s.bus.Publish(events.StreamStateChangedEvent{
		RunID:     runID,
		From:      string(from),
		To:        string(to),
		Device:    t.Device,
		Mode:      string(t.Mode),
		Source:    t.Source,
		Timestamp: events.Now(),
	})
}
