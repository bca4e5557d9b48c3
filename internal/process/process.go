package process

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
)

const (
	defaultQueueSize   = 1024
	defaultReadTimeout = 100 * time.Millisecond
	defaultKillTimeout = 5 * time.Second
	maxLineSize        = 1024 * 1024
)

// OutputHandler receives output lines from the subprocess.
// source is "stdout" or "stderr".
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
// Used to mirror tool diagnostics at the level the tool reported.
type LogParser func(line string) (level, msg string)

// Options configures a process started with Start.
type Options struct {
	// ID names the process in logs.
	ID string
	// Args is the full argument vector; Args[0] is the binary.
	Args []string
	// Blind discards all output. No reader goroutines run and ReadLine
	// always reports nothing.
	Blind bool
	// QueueSize bounds each line queue (default 1024).
	QueueSize int
	// ReadTimeout bounds how long ReadLine waits (default 100ms).
	ReadTimeout time.Duration
	// KillTimeout bounds how long Stop waits after SIGKILL (default 5s).
	KillTimeout time.Duration

	Logger        logging.Logger // lifecycle logs (nil = discard)
	OutputLogger  logging.Logger // mirror for stderr lines (nil = no mirroring)
	LogParser     LogParser      // level extraction for mirrored lines
	OutputHandler OutputHandler  // sees every line of both streams
}

// Process is a handle to one running external process.
type Process struct {
	id            string
	args          []string
	cmd           *exec.Cmd
	logger        logging.Logger
	outputLogger  logging.Logger
	logParser     LogParser
	outputHandler OutputHandler
	readTimeout   time.Duration
	killTimeout   time.Duration

	stdout *lineQueue // nil in blind mode
	stderr *lineQueue // nil in blind mode
	pipes  []*os.File // parent read ends

	state    atomic.Int32
	killed   atomic.Bool
	exitCode atomic.Int64
	exitErr  error

	exited      chan struct{} // closed once cmd.Wait returned
	readersDone chan struct{} // closed once both readers returned
	done        chan struct{} // closed once output is drained and pipes are closed

	pipesOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

// Start launches the process described by opts. On failure it returns a
// *SpawnError and no goroutines are left behind.
func Start(opts Options) (*Process, error) {
	if len(opts.Args) == 0 || opts.Args[0] == "" {
		return nil, &SpawnError{ID: opts.ID, Err: ErrEmptyCommand}
	}

	p := &Process{
		id:            opts.ID,
		args:          append([]string(nil), opts.Args...),
		logger:        opts.Logger,
		outputLogger:  opts.OutputLogger,
		logParser:     opts.LogParser,
		outputHandler: opts.OutputHandler,
		readTimeout:   opts.ReadTimeout,
		killTimeout:   opts.KillTimeout,
		exited:        make(chan struct{}),
		readersDone:   make(chan struct{}),
		done:          make(chan struct{}),
	}
	if p.logger == nil {
		p.logger = discardLogger{}
	}
	if p.readTimeout <= 0 {
		p.readTimeout = defaultReadTimeout
	}
	if p.killTimeout <= 0 {
		p.killTimeout = defaultKillTimeout
	}
	p.exitCode.Store(-1)

	p.cmd = exec.Command(p.args[0], p.args[1:]...)
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var writeEnds []*os.File
	if !opts.Blind {
		size := opts.QueueSize
		if size <= 0 {
			size = defaultQueueSize
		}
		p.stdout = newLineQueue(size)
		p.stderr = newLineQueue(size)

		stdoutR, stdoutW, err := os.Pipe()
		if err != nil {
			return nil, &SpawnError{ID: p.id, Path: p.args[0], Err: err}
		}
		stderrR, stderrW, err := os.Pipe()
		if err != nil {
			stdoutR.Close()
			stdoutW.Close()
			return nil, &SpawnError{ID: p.id, Path: p.args[0], Err: err}
		}
		p.cmd.Stdout = stdoutW
		p.cmd.Stderr = stderrW
		p.pipes = []*os.File{stdoutR, stderrR}
		writeEnds = []*os.File{stdoutW, stderrW}
	}

	err := p.cmd.Start()
	// The child holds its own copies of the write ends.
	for _, w := range writeEnds {
		w.Close()
	}
	if err != nil {
		p.closePipes()
		p.logger.Error("Failed to start process", "id", p.id, "error", err, "args", p.args)
		return nil, &SpawnError{ID: p.id, Path: p.args[0], Err: err}
	}

	p.state.Store(int32(StateRunning))
	p.logger.Info("Process started", "id", p.id, "pid", p.cmd.Process.Pid, "args", p.args)

	if opts.Blind {
		close(p.readersDone)
	} else {
		var g errgroup.Group
		g.Go(func() error { return p.drain(p.pipes[0], "stdout", p.stdout) })
		g.Go(func() error { return p.drain(p.pipes[1], "stderr", p.stderr) })
		go func() {
			if err := g.Wait(); err != nil {
				p.logger.Warn("Error reading output", "id", p.id, "error", err)
			}
			close(p.readersDone)
		}()
	}

	go p.wait()
	return p, nil
}

// wait reaps the child, then waits for the readers to hit EOF before
// releasing the pipes.
func (p *Process) wait() {
	err := p.cmd.Wait()
	p.exitErr = err
	code := exitCodeFromError(err)
	if p.killed.Load() {
		p.state.Store(int32(StateKilled))
		code = 137
	} else {
		p.state.Store(int32(StateExited))
	}
	p.exitCode.Store(int64(code))
	close(p.exited)
	p.logger.Info("Process exited", "id", p.id, "exit_code", code, "killed", p.killed.Load())

	<-p.readersDone
	p.closePipes()
	close(p.done)
}

// ID returns the identifier given at start.
func (p *Process) ID() string { return p.id }

// Args returns a copy of the argument vector.
func (p *Process) Args() []string { return append([]string(nil), p.args...) }

// PID returns the operating system process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Blind reports whether the process was started with its output discarded.
func (p *Process) Blind() bool { return p.stderr == nil }

// State returns the current lifecycle state.
func (p *Process) State() State { return State(p.state.Load()) }

// IsAlive reports whether the child is still running. It never blocks.
func (p *Process) IsAlive() bool { return p.State() == StateRunning }

// Exited is closed when the child has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Done is closed when the child has been reaped and all of its output has
// been read into the queues.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitCode returns the exit status, 137 when killed, or -1 while running.
func (p *Process) ExitCode() int { return int(p.exitCode.Load()) }

// Err returns the error from cmd.Wait once the child exited.
func (p *Process) Err() error {
	select {
	case <-p.exited:
		return p.exitErr
	default:
		return nil
	}
}

// Dropped returns how many lines were discarded because a queue was full.
func (p *Process) Dropped() uint64 {
	if p.stdout == nil {
		return 0
	}
	return p.stdout.dropped.Load() + p.stderr.dropped.Load()
}

// ReadLine returns the next diagnostic (stderr) line. It waits at most the
// configured read timeout and returns false when nothing arrived, when the
// process was started blind, or immediately when the process has exited and
// its queue is empty.
func (p *Process) ReadLine() (string, bool) {
	return p.read(p.stderr)
}

// ReadOutput is ReadLine for stdout.
func (p *Process) ReadOutput() (string, bool) {
	return p.read(p.stdout)
}

func (p *Process) read(q *lineQueue) (string, bool) {
	if q == nil {
		return "", false
	}
	if line, ok := q.tryPop(); ok {
		return line, true
	}

	timer := time.NewTimer(p.readTimeout)
	defer timer.Stop()

	select {
	case line := <-q.ch:
		return line, true
	case <-q.eof:
	case <-p.exited:
	case <-timer.C:
		return "", false
	}
	return q.tryPop()
}

// Stop kills the process group, waits for the child and the output readers,
// then closes the pipes. Calling Stop more than once, or after the process
// exited on its own, is safe and returns the first result.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		p.stopErr = p.stop()
	})
	return p.stopErr
}

func (p *Process) stop() error {
	if p.IsAlive() {
		p.killed.Store(true)
		p.killGroup()
	}

	select {
	case <-p.exited:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id, "timeout", p.killTimeout)
		p.closePipes()
		return ErrKillTimeout
	}

	select {
	case <-p.readersDone:
	default:
		// The child is gone but something it started still holds the
		// output pipes; it shares the group.
		p.killGroup()
	}

	select {
	case <-p.readersDone:
	case <-time.After(p.killTimeout):
		// A descendant outside the process group still holds a write end.
		p.logger.Warn("Output readers still open after exit, closing pipes", "id", p.id)
	}
	p.closePipes()
	<-p.done
	return nil
}

func (p *Process) killGroup() {
	pid := p.cmd.Process.Pid
	p.logger.Info("Killing process group", "id", p.id, "pid", pid)
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return
	}
	p.logger.Warn("Failed to kill process group, killing process", "id", p.id, "error", err)
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("Failed to kill process", "id", p.id, "error", err)
	}
}

func (p *Process) closePipes() {
	p.pipesOnce.Do(func() {
		for _, f := range p.pipes {
			f.Close()
		}
	})
}

// drain reads one stream line by line until EOF or until the pipe is closed.
func (p *Process) drain(r io.Reader, source string, q *lineQueue) error {
	defer q.close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}
		if source == "stderr" {
			p.mirror(line)
		}
		q.push(line)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// mirror logs a diagnostic line through the output logger at the level the
// tool reported.
func (p *Process) mirror(line string) {
	if p.outputLogger == nil {
		return
	}
	level, msg := "info", line
	if p.logParser != nil {
		level, msg = p.logParser(line)
	}

	switch level {
	case "fatal", "panic", "error":
		p.outputLogger.Error(msg)
	case "warning":
		p.outputLogger.Warn(msg)
	case "verbose", "debug", "trace":
		p.outputLogger.Debug(msg)
	default:
		p.outputLogger.Info(msg)
	}
}

// scanLines splits on '\n' or '\r' so carriage-return progress updates
// become separate lines. A "\r\n" pair yields a single line.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// Might be the first half of "\r\n"; wait for more data.
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
