// Package console is the interactive line interface: load media, pick a
// sink and switch between sources while a stream runs.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/rcn8397/v4l2loopback-tricks/internal/devices"
	"github.com/rcn8397/v4l2loopback-tricks/internal/events"
	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
	"github.com/rcn8397/v4l2loopback-tricks/internal/jobs"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
	"github.com/rcn8397/v4l2loopback-tricks/internal/stream"
)

// Session is the part of stream.Session the console drives.
type Session interface {
	Stream() error
	Stop() error
	Reconfigure(t stream.Target) error
	IsStreaming() bool
	Target() stream.Target
	Status() stream.Status
}

// Devices lists video nodes and checks sinks.
type Devices interface {
	List() ([]devices.Device, error)
	ValidateSink(path string) error
}

// Options wires a Console.
type Options struct {
	Session  Session
	Registry *media.Registry
	Devices  Devices
	// Fs and Extensions drive the load command's discovery walk.
	Fs         afero.Fs
	Extensions media.ExtensionSet
	Exclude    []string
	// Bus, when set, reports stream transitions between commands.
	Bus *events.Bus
	In  io.Reader
	Out io.Writer
}

// Console reads commands until q, quit or end of input.
type Console struct {
	opts   Options
	out    io.Writer
	sink   string
	active int
	logger logging.Logger
}

// New returns a console. The sink starts as the session target's device.
func New(opts Options) *Console {
	if opts.Registry == nil {
		opts.Registry = media.NewRegistry()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Console{
		opts:   opts,
		out:    opts.Out,
		sink:   opts.Session.Target().Device,
		active: -1,
		logger: logging.GetLogger("console"),
	}
}

type command struct {
	usage string
	help  string
	run   func(c *Console, ctx context.Context, arg string) bool
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"list":    {"list", "List media source(s) loaded", (*Console).doList},
		"load":    {"load <path>", "Load media source(s) @ <path>", (*Console).doLoad},
		"next":    {"next", "Make next source the active source", (*Console).doNext},
		"sink":    {"sink <device>", "Set the device sink", (*Console).doSink},
		"stream":  {"stream [index|name]", "Stream media to v4l2loopback device", (*Console).doStream},
		"stop":    {"stop", "Stops the active stream", (*Console).doStop},
		"status":  {"status", "Show the stream state and transcoder progress", (*Console).doStatus},
		"devices": {"devices", "List video devices", (*Console).doDevices},
		"logs":    {"logs [n]", "Show the last n log lines (default 20)", (*Console).doLogs},
		"help":    {"help [command]", "Show help", (*Console).doHelp},
		"quit":    {"quit", "Exits program", nil},
	}
}

var aliases = map[string]string{
	"n":   "next",
	"q":   "quit",
	"EOF": "quit",
	"?":   "help",
}

// Run processes commands until the input ends, a quit command arrives or
// ctx is canceled. A running stream is stopped on the way out.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.opts.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var evCh chan any
	if c.opts.Bus != nil {
		evCh = make(chan any, 16)
		defer events.SubscribeToChannel[events.StreamStateChangedEvent](c.opts.Bus, evCh)()
		defer events.SubscribeToChannel[events.StreamStartFailedEvent](c.opts.Bus, evCh)()
	}

	defer c.shutdown()
	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-evCh:
			c.report(ev)

		case line, ok := <-lines:
			if !ok {
				c.println("EOF")
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if c.execute(ctx, line) {
				return nil
			}
			c.prompt()
		}
	}
}

// execute runs one command line and reports whether the console should exit.
func (c *Console) execute(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	if alias, ok := aliases[name]; ok {
		name = alias
	}

	cmd, ok := commands[name]
	if !ok {
		c.printf("*** Unknown syntax: %s\n", line)
		return false
	}
	if cmd.run == nil {
		return true
	}
	c.logger.Debug("Console command", "command", name, "arg", arg)
	return cmd.run(c, ctx, arg)
}

func (c *Console) shutdown() {
	if c.opts.Session.IsStreaming() {
		c.println("Stopping Stream")
		if err := c.opts.Session.Stop(); err != nil {
			c.logger.Warn("Failed to stop stream on exit", "error", err)
		}
	}
}

func (c *Console) state() string {
	if c.opts.Session.IsStreaming() {
		return "Playing"
	}
	return "Stopped"
}

func (c *Console) prompt() {
	queued := ""
	if src, ok := c.opts.Registry.At(c.active); ok {
		queued = " " + src.Name
	}
	c.printf("([ %s : %s ]%s)\n(!>) ", c.state(), c.sink, queued)
}

func (c *Console) report(ev any) {
	switch e := ev.(type) {
	case events.StreamStateChangedEvent:
		if e.To == string(stream.StateIdle) && e.From == string(stream.StateActive) {
			c.printf("\nStream ended: %s\n", filepath.Base(e.Source))
		}
	case events.StreamStartFailedEvent:
		c.printf("\nStream failed: %s\n", e.Error)
	}
}

func (c *Console) doList(_ context.Context, _ string) bool {
	for i, src := range c.opts.Registry.Snapshot() {
		c.printf("[%d]: %s\n", i, src.Path)
	}
	return false
}

// Load runs the load command for path, as if it had been typed.
func (c *Console) Load(ctx context.Context, path string) {
	c.doLoad(ctx, path)
}

func (c *Console) doLoad(ctx context.Context, arg string) bool {
	c.printf("Loading all media sources @ [%s]\n", arg)
	path := expandHome(arg)
	if ok, _ := afero.Exists(c.opts.Fs, path); path == "" || !ok {
		c.doHelp(ctx, "load")
		return false
	}

	before := c.opts.Registry.Len()
	if info, err := c.opts.Fs.Stat(path); err == nil && !info.IsDir() {
		c.opts.Registry.Add(path)
	} else {
		d := jobs.NewDescriptor(0, jobs.KindDiscovery, path, jobs.NopReporter{})
		res := jobs.Execute(ctx, d, jobs.Discovery(jobs.DiscoveryOptions{
			Root:       path,
			Fs:         c.opts.Fs,
			Registry:   c.opts.Registry,
			Extensions: c.opts.Extensions,
			Exclude:    c.opts.Exclude,
		}))
		if res.Outcome != jobs.OutcomeCompleted {
			c.printf("Load %s: %v\n", res.Outcome, res.Err)
		}
	}

	c.println("Loaded:")
	c.doList(ctx, "")
	c.println("Finished!")
	after := c.opts.Registry.Len()
	c.printf("New media loaded %d, %d total\n", after-before, after)
	return false
}

func (c *Console) doNext(ctx context.Context, _ string) bool {
	n := c.opts.Registry.Len()
	if n == 0 {
		c.println("No media loaded")
		return false
	}
	c.active++
	if c.active >= n {
		c.active = 0
	}
	src, _ := c.opts.Registry.At(c.active)

	if c.opts.Session.IsStreaming() {
		c.doStop(ctx, "")
	}
	c.start(src)
	return false
}

func (c *Console) doSink(_ context.Context, arg string) bool {
	path := expandHome(arg)
	if c.opts.Devices != nil {
		if err := c.opts.Devices.ValidateSink(path); err != nil {
			c.printf("Could not set sink to %s: %v\n", arg, err)
			return false
		}
	}
	c.sink = path
	c.printf("Sink set to %s\n", path)
	if c.opts.Session.IsStreaming() {
		c.println("The new sink is used by the next stream")
	}
	return false
}

func (c *Console) doStream(_ context.Context, arg string) bool {
	if c.opts.Session.IsStreaming() {
		c.println("Stream already started")
		return false
	}

	if arg == "" {
		if c.active < 0 {
			c.println("Nothing selected, use stream <index|name> or next")
			return false
		}
		arg = fmt.Sprint(c.active)
	}

	src, i, err := c.opts.Registry.Lookup(arg)
	if err != nil {
		c.printf("Source not found: %s\n", arg)
		return false
	}
	if arg == fmt.Sprint(i) {
		c.printf("Starting Stream @ %d\n", i)
	} else {
		c.printf("Starting Stream for %s\n", arg)
	}
	c.active = i
	c.start(src)
	return false
}

func (c *Console) start(src media.Source) {
	c.printf("Source: %s\n", src.Path)
	target := c.opts.Session.Target()
	target.Device = c.sink
	target.Source = src.Path
	if target.Mode != ffmpeg.ModeOverlay {
		target.Mode = ffmpeg.ModeFile
	}

	if err := c.opts.Session.Reconfigure(target); err != nil {
		c.printf("Cannot stream %s: %v\n", src.Name, err)
		return
	}
	if err := c.opts.Session.Stream(); err != nil {
		var startErr *stream.StartError
		if errors.As(err, &startErr) {
			err = startErr.Err
		}
		c.printf("Stream failed: %v\n", err)
	}
}

func (c *Console) doStop(_ context.Context, _ string) bool {
	if !c.opts.Session.IsStreaming() {
		c.println("Nothing currently Streaming")
		return false
	}
	c.println("Stopping Stream")
	if err := c.opts.Session.Stop(); err != nil {
		c.printf("Stop failed: %v\n", err)
	}
	return false
}

func (c *Console) doStatus(_ context.Context, _ string) bool {
	st := c.opts.Session.Status()
	c.printf("State:  %s\n", st.State)
	c.printf("Sink:   %s\n", c.sink)
	if st.Target.Source != "" {
		c.printf("Source: %s\n", st.Target.Source)
	}
	if st.Streaming {
		c.printf("PID:    %d\n", st.PID)
		c.printf("Run:    %s\n", st.RunID)
	}
	if p := st.Progress; p != nil {
		c.printf("Frames: %.0f at %.1f fps (speed %.2fx, dropped %.0f)\n", p.Frames, p.FPS, p.Speed, p.DroppedFrames)
	}
	if st.LastError != "" {
		c.printf("Last error: %s\n", st.LastError)
	}
	return false
}

func (c *Console) doDevices(_ context.Context, _ string) bool {
	if c.opts.Devices == nil {
		c.println("Device listing is not available")
		return false
	}
	list, err := c.opts.Devices.List()
	if err != nil {
		c.printf("Failed to list devices: %v\n", err)
		return false
	}
	if len(list) == 0 {
		c.println("No video devices found")
	}
	for _, d := range list {
		marker := ""
		if d.Loopback {
			marker = " [loopback]"
		}
		if d.Path == c.sink {
			marker += " *"
		}
		c.printf("%s  %s%s\n", d.Path, d.Name, marker)
	}
	return false
}

const defaultLogLines = 20

func (c *Console) doLogs(_ context.Context, arg string) bool {
	n := defaultLogLines
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v <= 0 {
			c.println(commands["logs"].usage)
			return false
		}
		n = v
	}
	entries := logging.GetBuffer().Recent(n, nil)
	if len(entries) == 0 {
		c.println("No log lines yet")
	}
	for _, e := range entries {
		c.println(logging.FormatLogLine(e))
	}
	return false
}

func (c *Console) doHelp(_ context.Context, arg string) bool {
	if alias, ok := aliases[arg]; ok {
		arg = alias
	}
	if cmd, ok := commands[arg]; ok {
		c.println(cmd.usage)
		c.println(cmd.help)
		return false
	}

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	c.println("Documented commands (type help <topic>):")
	c.println(strings.Join(names, "  "))
	return false
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
