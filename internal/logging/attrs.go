package logging

import (
	"log/slog"
	"slices"
	"time"
)

// Attribute keys that the buffer lifts into LogEntry fields.
const (
	ModuleKey = "module"
	RunIDKey  = "run_id"
	JobIDKey  = "job_id"
)

// scopedAttr is an attribute given to WithAttrs together with the groups
// that were open at the time.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

func withScopedAttrs(prev []scopedAttr, groups []string, attrs []slog.Attr) []scopedAttr {
	out := slices.Grow(slices.Clip(prev), len(attrs))
	for _, a := range attrs {
		out = append(out, scopedAttr{groups: groups, attr: a})
	}
	return out
}

// walkAttr calls visit for each leaf value of a with the group path that
// leads to it. Empty attributes are dropped and groups without a key are
// inlined, as slog handlers are expected to do.
func walkAttr(path []string, a slog.Attr, visit func(path []string, v slog.Value)) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() != slog.KindGroup {
		visit(append(slices.Clip(path), a.Key), a.Value)
		return
	}
	if a.Key != "" {
		path = append(slices.Clip(path), a.Key)
	}
	for _, ga := range a.Value.Group() {
		walkAttr(path, ga, visit)
	}
}

// plainValue converts v to what the logs endpoint serializes.
func plainValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
