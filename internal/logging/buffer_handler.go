package logging

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// LogCallback is called for every entry a BufferHandler stores. The daemon
// uses it to republish entries on the event bus.
type LogCallback func(entry LogEntry)

// BufferHandler stores records in a RingBuffer for the logs endpoint and
// the console. The module, run_id and job_id attributes become LogEntry
// fields; the rest are flattened into Attributes with dotted group paths.
type BufferHandler struct {
	buffer *RingBuffer
	level  slog.Leveler
	notify LogCallback
	groups []string
	preset []scopedAttr
}

// NewBufferHandler creates a handler writing to buffer. notify may be nil.
func NewBufferHandler(buffer *RingBuffer, level slog.Leveler, notify LogCallback) *BufferHandler {
	return &BufferHandler{buffer: buffer, level: level, notify: notify}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp: r.Time,
		Level:     levelName(r.Level),
		Module:    "app",
		Message:   r.Message,
	}
	for _, sa := range h.preset {
		entry.add(sa.groups, sa.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.add(h.groups, a)
		return true
	})

	h.buffer.Write(entry)
	if h.notify != nil {
		h.notify(entry)
	}
	return nil
}

func (e *LogEntry) add(groups []string, a slog.Attr) {
	if len(groups) == 0 {
		v := a.Value.Resolve()
		switch a.Key {
		case ModuleKey:
			e.Module = v.String()
			return
		case RunIDKey:
			if v.Kind() == slog.KindString {
				e.RunID = v.String()
				return
			}
		case JobIDKey:
			switch v.Kind() {
			case slog.KindUint64:
				e.JobID = v.Uint64()
				return
			case slog.KindInt64:
				if id := v.Int64(); id >= 0 {
					e.JobID = uint64(id)
					return
				}
			}
		}
	}
	walkAttr(groups, a, func(path []string, v slog.Value) {
		if e.Attributes == nil {
			e.Attributes = make(map[string]any)
		}
		e.Attributes[strings.Join(path, ".")] = plainValue(v)
	})
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = withScopedAttrs(h.preset, h.groups, attrs)
	return &next
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(slices.Clip(h.groups), name)
	return &next
}

// FormatLogLine renders entry as one console line: clock time, level,
// module, the run or job it belongs to, the message and then the
// attributes sorted by key.
func FormatLogLine(entry LogEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-5s %-8s", entry.Timestamp.Format("15:04:05.000"), strings.ToUpper(entry.Level), entry.Module)
	if entry.RunID != "" {
		fmt.Fprintf(&sb, " run=%s", shortRunID(entry.RunID))
	}
	if entry.JobID != 0 {
		fmt.Fprintf(&sb, " job=%d", entry.JobID)
	}
	sb.WriteString(" ")
	sb.WriteString(entry.Message)
	for _, k := range slices.Sorted(maps.Keys(entry.Attributes)) {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Attributes[k])
	}
	return sb.String()
}

// shortRunID keeps the first block of a UUID.
func shortRunID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
