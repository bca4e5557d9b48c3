package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/google/go-cmp/cmp"
)

func resetState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	verbose = false
	logBuffer = NewRingBuffer(defaultBufferSize)
	logCallback = nil
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"jobs":   "debug",
			"ffmpeg": "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"jobs", true, true, true},
		{"ffmpeg", false, false, true},
		{"stream", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := handler.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, got, tt.wantDebug)
			}
			if got := handler.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, got, tt.wantInfo)
			}
			if got := handler.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState()

	before := GetLogger("stream")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"stream": "debug"}})

	after := GetLogger("stream")
	if !after.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger should have debug enabled after Initialize")
	}
}

func TestSetVerboseRespectsPinnedModules(t *testing.T) {
	resetState()
	Initialize(Config{Level: "info", Modules: map[string]string{"ffmpeg": "error"}})

	stream := GetLogger("stream")
	ffmpeg := GetLogger("ffmpeg")

	SetVerbose(true)
	defer SetVerbose(false)

	if !stream.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("stream should log debug when verbose")
	}
	if ffmpeg.Handler().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("ffmpeg is pinned to error and should stay there")
	}
}

func TestSetOutputAndBuffer(t *testing.T) {
	resetState()
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	var got []LogEntry
	SetLogCallback(func(entry LogEntry) { got = append(got, entry) })

	GetLogger("console").Info("queued source", "path", "/tmp/a.mp4")

	if !strings.Contains(buf.String(), "queued source") {
		t.Errorf("output missing message: %s", buf.String())
	}
	entries := GetBuffer().ReadAll()
	if len(entries) != 1 {
		t.Fatalf("buffer has %d entries, want 1", len(entries))
	}
	if entries[0].Module != "console" || entries[0].Attributes["path"] != "/tmp/a.mp4" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
	if len(got) != 1 {
		t.Errorf("callback called %d times, want 1", len(got))
	}
}

func TestFanoutDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(fanout{debugHandler, infoHandler}).With(ModuleKey, "test")
	logger.Debug("debug only message")

	if count := strings.Count(buf.String(), "debug only message"); count != 1 {
		t.Errorf("expected 1 debug message, got %d. Output: %s", count, buf.String())
	}
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug-1) {
		t.Error("fanout enabled below every handler's level")
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink gone") }

func TestFanoutKeepsGoingAfterError(t *testing.T) {
	var buf bytes.Buffer
	text := slog.NewTextHandler(&buf, nil)

	h := fanout{failingHandler{text}, text}
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "still written", 0))
	if err == nil || !strings.Contains(err.Error(), "sink gone") {
		t.Errorf("Handle() error = %v", err)
	}
	if !strings.Contains(buf.String(), "still written") {
		t.Errorf("second handler skipped: %q", buf.String())
	}
}

func TestRingBufferRecent(t *testing.T) {
	rb := NewRingBuffer(3)
	if got := rb.ReadAll(); len(got) != 0 {
		t.Errorf("empty buffer returned %+v", got)
	}
	for i := range 5 {
		rb.Write(LogEntry{Message: string(rune('a' + i)), JobID: uint64(i % 2), Timestamp: time.Now()})
	}

	all := rb.ReadAll()
	if len(all) != 3 || all[0].Message != "c" || all[2].Message != "e" {
		t.Errorf("ReadAll() = %+v", all)
	}
	recent := rb.Recent(2, nil)
	if len(recent) != 2 || recent[0].Message != "d" || recent[1].Message != "e" {
		t.Errorf("Recent(2) = %+v", recent)
	}
	if got := len(rb.Recent(0, nil)); got != 3 {
		t.Errorf("Recent(0) returned %d entries, want 3", got)
	}
	odd := rb.Recent(5, func(e LogEntry) bool { return e.JobID == 1 })
	if len(odd) != 1 || odd[0].Message != "d" {
		t.Errorf("Recent(filter) = %+v", odd)
	}
	if rb.Count() != 3 {
		t.Errorf("Count() = %d, want 3", rb.Count())
	}
}

func TestBufferLiftsRunAndJob(t *testing.T) {
	rb := NewRingBuffer(8)
	logger := slog.New(NewBufferHandler(rb, slog.LevelDebug, nil)).With(ModuleKey, "stream")

	logger.With(RunIDKey, "0f6c2a9e-1111-2222-3333-444455556666").Info("Stream started", "pid", 42)
	logger.With(JobIDKey, uint64(7), "kind", "thumbnail").Warn("Job failed", "error", errors.New("exit status 1"))
	logger.WithGroup("media").Info("Inspected", "streams", 2, slog.Group("format", "name", "mp4"))
	logger.Info("Signed id", JobIDKey, -1)

	entries := rb.ReadAll()
	if len(entries) != 4 {
		t.Fatalf("buffer has %d entries, want 4", len(entries))
	}

	want := []LogEntry{
		{Level: "info", Module: "stream", Message: "Stream started", RunID: "0f6c2a9e-1111-2222-3333-444455556666",
			Attributes: map[string]any{"pid": int64(42)}},
		{Level: "warn", Module: "stream", Message: "Job failed", JobID: 7,
			Attributes: map[string]any{"kind": "thumbnail", "error": "exit status 1"}},
		{Level: "info", Module: "stream", Message: "Inspected",
			Attributes: map[string]any{"media.streams": int64(2), "media.format.name": "mp4"}},
		{Level: "info", Module: "stream", Message: "Signed id",
			Attributes: map[string]any{JobIDKey: int64(-1)}},
	}
	for i := range want {
		got := entries[i]
		got.Timestamp = time.Time{}
		if diff := cmp.Diff(want[i], got); diff != "" {
			t.Errorf("entry %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestFormatLogLine(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	tests := []struct {
		name  string
		entry LogEntry
		want  string
	}{
		{
			name: "attributes sorted",
			entry: LogEntry{Timestamp: at, Level: "warn", Module: "devices", Message: "sink missing",
				Attributes: map[string]any{"path": "/dev/video20", "attempt": 2}},
			want: "03:04:05.006 WARN  devices  sink missing attempt=2 path=/dev/video20",
		},
		{
			name:  "stream run",
			entry: LogEntry{Timestamp: at, Level: "info", Module: "stream", Message: "Stream started", RunID: "0f6c2a9e-1111-2222-3333-444455556666"},
			want:  "03:04:05.006 INFO  stream   run=0f6c2a9e Stream started",
		},
		{
			name:  "job",
			entry: LogEntry{Timestamp: at, Level: "error", Module: "jobs", Message: "Job failed", JobID: 12},
			want:  "03:04:05.006 ERROR jobs     job=12 Job failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatLogLine(tt.entry); got != tt.want {
				t.Errorf("FormatLogLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJournalFields(t *testing.T) {
	var (
		message  string
		priority journal.Priority
		fields   map[string]string
	)
	h := NewJournalHandler(slog.LevelInfo)
	h.send = func(m string, p journal.Priority, vars map[string]string) error {
		message, priority, fields = m, p, vars
		return nil
	}

	logger := slog.New(h).With(ModuleKey, "jobs").WithGroup("job")
	logger.Warn("Job failed", "id", 3, "message", "boom", "2pass", true, "out-dir", "/var/cache")

	if message != "Job failed" || priority != journal.PriWarning {
		t.Errorf("sent %q at priority %d", message, priority)
	}
	want := map[string]string{
		"SYSLOG_IDENTIFIER": journalIdentifier,
		"MODULE":            "jobs",
		"JOB_ID":            "3",
		"JOB_MESSAGE":       "boom",
		"JOB_2PASS":         "true",
		"JOB_OUT_DIR":       "/var/cache",
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestJournalFieldNames(t *testing.T) {
	tests := []struct {
		path []string
		want string
	}{
		{[]string{"path"}, "PATH"},
		{[]string{"_private"}, "PRIVATE"},
		{[]string{"9lives"}, "ATTR_9LIVES"},
		{[]string{"message"}, "ATTR_MESSAGE"},
		{[]string{"priority"}, "ATTR_PRIORITY"},
		{[]string{"http", "status.code"}, "HTTP_STATUS_CODE"},
		{[]string{"__"}, "ATTR"},
	}
	for _, tt := range tests {
		if got := journalField(tt.path); got != tt.want {
			t.Errorf("journalField(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			switch {
			case tt.isNil && got != nil:
				t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
			case !tt.isNil && got == nil:
				t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
			case !tt.isNil && *got != tt.want:
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}
