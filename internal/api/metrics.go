package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/rcn8397/v4l2loopback-tricks/internal/metrics"
)

// progressInterval paces the progress stream; ffmpeg reports about twice a second.
const progressInterval = time.Second

// ProgressEvent is one sample of the running transcoder's progress.
type ProgressEvent struct {
	Device    string                 `json:"device" example:"/dev/video20" doc:"Sink device"`
	RunID     string                 `json:"run_id" doc:"Identifier of the stream run"`
	Progress  metrics.StreamProgress `json:"progress" doc:"Latest progress report"`
	Timestamp string                 `json:"timestamp" doc:"Sample time"`
}

func (s *Server) registerMetricsRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Progress Stream",
		Description: "Periodic transcoder progress samples while a stream is active",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"progress": ProgressEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if s.options.Session == nil {
					continue
				}
				st := s.options.Session.Status()
				if st.Progress == nil {
					continue
				}
				if err := send.Data(ProgressEvent{
					Device:    st.Target.Device,
					RunID:     st.RunID,
					Progress:  *st.Progress,
					Timestamp: now.UTC().Format(time.RFC3339),
				}); err != nil {
					return
				}
			}
		}
	})
}
