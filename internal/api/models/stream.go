package models

import (
	"github.com/rcn8397/v4l2loopback-tricks/internal/ffmpeg"
	"github.com/rcn8397/v4l2loopback-tricks/internal/stream"
)

type StreamStatusResponse struct {
	Body stream.Status
}

// StreamTargetData changes the target of the next run. Empty fields keep
// their current value.
type StreamTargetData struct {
	Device   string           `json:"device,omitempty" example:"/dev/video20" doc:"Loopback sink device"`
	Mode     string           `json:"mode,omitempty" enum:"file,overlay,region" example:"file" doc:"Stream mode"`
	Source   string           `json:"source,omitempty" example:"3" doc:"Source path, registry index or file name"`
	Overlay  string           `json:"overlay,omitempty" doc:"Image for overlay mode"`
	Geometry *ffmpeg.Geometry `json:"geometry,omitempty" doc:"Capture rectangle for region mode"`
	Display  string           `json:"display,omitempty" example:":0" doc:"X display for region mode"`
	Mirror   *bool            `json:"mirror,omitempty" doc:"Flip region captures horizontally"`
	Loop     *bool            `json:"loop,omitempty" doc:"Restart the source at end of file"`
}

type StreamTargetRequest struct {
	Body StreamTargetData
}

type StreamStartData struct {
	Source string `json:"source,omitempty" example:"clip.mp4" doc:"Registry index or file name to stream; empty streams the current target"`
}

type StreamStartRequest struct {
	Body *StreamStartData `required:"false"`
}
