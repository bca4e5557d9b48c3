package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/rcn8397/v4l2loopback-tricks/internal/events"
)

// eventTypes names every event the /api/events stream can carry.
var eventTypes = map[string]any{
	"stream-state-changed": events.StreamStateChangedEvent{},
	"stream-start-failed":  events.StreamStartFailedEvent{},
	"stream-output":        events.StreamOutputEvent{},
	"job-progress":         events.JobProgressEvent{},
	"job-log":              events.JobLogEvent{},
	"job-completed":        events.JobCompletedEvent{},
	"job-aborted":          events.JobAbortedEvent{},
	"job-failed":           events.JobFailedEvent{},
	"sources-changed":      events.SourcesChangedEvent{},
}

func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of session transitions, transcoder output, job progress and registry changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, eventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 64)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.StreamStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamStartFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamOutputEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.JobProgressEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.JobLogEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.JobCompletedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.JobAbortedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.JobFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SourcesChangedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// The current state goes first so clients need no separate fetch.
		if session := s.options.Session; session != nil {
			st := session.Status()
			if err := send.Data(events.StreamStateChangedEvent{
				RunID:     st.RunID,
				From:      string(st.State),
				To:        string(st.State),
				Device:    st.Target.Device,
				Mode:      string(st.Target.Mode),
				Source:    st.Target.Source,
				Timestamp: events.Now(),
			}); err != nil {
				return
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
