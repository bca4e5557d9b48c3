package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Components accept it so tests can hand in a discard logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	verbose         bool
	mutex           sync.RWMutex
	logBuffer       = NewRingBuffer(defaultBufferSize)
	logCallback     LogCallback
	output          io.Writer = os.Stdout
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// Initialize sets up the logging system. Loggers handed out before the call
// are rebuilt in place so their levels and outputs follow the new config.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	globalLevelVar.Set(baseLevel())

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module))
		moduleLoggers[module] = slog.New(createHandler(config.Format, levelVar)).With(ModuleKey, module)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// SetVerbose lowers the global level and every module without an explicit
// override to debug. It backs the -v flag.
func SetVerbose(enabled bool) {
	mutex.Lock()
	defer mutex.Unlock()

	verbose = enabled
	globalLevelVar.Set(baseLevel())
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module))
	}
}

// SetOutput redirects the text/json handler. Used by the console so log lines
// do not interleave with its prompt.
func SetOutput(w io.Writer) {
	mutex.Lock()
	output = w
	mutex.Unlock()

	Initialize(currentConfig())
}

func currentConfig() Config {
	mutex.RLock()
	defer mutex.RUnlock()
	return globalConfig
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback sets a callback invoked for every buffered log entry.
// The daemon uses it to republish entries on the event bus.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

func currentCallback() LogCallback {
	mutex.RLock()
	defer mutex.RUnlock()
	return logCallback
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	format := "text"
	levelVar.Set(moduleLevel(module))
	if isInitialized {
		format = globalConfig.Format
	}

	logger := slog.New(createHandler(format, levelVar)).With(ModuleKey, module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// baseLevel is the global level, lowered to debug in verbose mode. Caller holds mutex.
func baseLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return levelOrDefault(globalConfig.Level, slog.LevelInfo)
}

// moduleLevel resolves the level for a module. Caller holds mutex.
func moduleLevel(module string) slog.Level {
	level := baseLevel()
	if levelStr, exists := globalConfig.Modules[module]; exists {
		level = levelOrDefault(levelStr, level)
	}
	return level
}

// createHandler builds the handler chain: stdout (text or json), journal when
// journald is reachable, and the ring buffer. Caller holds mutex.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if format == "json" {
		stdoutHandler = slog.NewJSONHandler(output, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(output, opts)
	}

	var handlers []slog.Handler
	if output != os.Stdout || isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(logBuffer, level, dispatchLogEntry))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return fanout(handlers)
}

// dispatchLogEntry is handed to buffer handlers; it reads the callback at
// log time so SetLogCallback applies to loggers created earlier.
func dispatchLogEntry(entry LogEntry) {
	if cb := currentCallback(); cb != nil {
		cb(entry)
	}
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOrDefault(level string, fallback slog.Level) slog.Level {
	if parsed := parseLevel(level); parsed != nil {
		return *parsed
	}
	return fallback
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
