package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/samber/lo"

	"github.com/rcn8397/v4l2loopback-tricks/internal/api/models"
	"github.com/rcn8397/v4l2loopback-tricks/internal/events"
	"github.com/rcn8397/v4l2loopback-tricks/internal/logging"
)

func toLogEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		RunID:      entry.RunID,
		JobID:      entry.JobID,
		Attributes: entry.Attributes,
	}
}

// ForwardLogs republishes every buffered log entry on bus, which feeds
// /api/logs/stream.
func ForwardLogs(bus *events.Bus) {
	logging.SetLogCallback(func(entry logging.LogEntry) {
		bus.Publish(toLogEvent(entry))
	})
}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Return buffered log entries, oldest first. Filter by module, stream run or job.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.LogsInput) (*models.LogsResponse, error) {
		var entries []logging.LogEntry
		if buffer := logging.GetBuffer(); buffer != nil {
			entries = buffer.Recent(input.Limit, func(e logging.LogEntry) bool {
				return (input.Module == "" || e.Module == input.Module) &&
					(input.RunID == "" || e.RunID == input.RunID) &&
					(input.JobID == 0 || e.JobID == input.JobID)
			})
		}
		out := lo.Map(entries, func(e logging.LogEntry, _ int) events.LogEntryEvent { return toLogEvent(e) })
		return &models.LogsResponse{Body: models.LogsData{Entries: out, Count: len(out)}}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends buffered logs first, then streams new ones.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing logged in between is lost.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				if err := send.Data(toLogEvent(entry)); err != nil {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
