package events

// Event type constants for kelindar/event.
const (
	TypeStreamStateChanged uint32 = iota + 1
	TypeStreamStartFailed
	TypeStreamOutput
	TypeJobProgress
	TypeJobLog
	TypeJobCompleted
	TypeJobAborted
	TypeJobFailed
	TypeSourcesChanged
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamStateChangedEvent is published on every session state transition.
type StreamStateChangedEvent struct {
	RunID     string `json:"run_id,omitempty" example:"4b1f0a6e-6a1c-4b52-9d43-7a3c5e0f9a11" doc:"Identifier of the stream run, empty while idle"`
	From      string `json:"from" example:"starting" doc:"Previous state"`
	To        string `json:"to" example:"active" doc:"New state"`
	Device    string `json:"device" example:"/dev/video20" doc:"Sink device"`
	Mode      string `json:"mode" example:"file" doc:"Stream mode: file, overlay or region"`
	Source    string `json:"source,omitempty" example:"/home/user/clip.mp4" doc:"Source file for file and overlay modes"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// StreamStartFailedEvent reports that a stream could not be started.
type StreamStartFailedEvent struct {
	Device    string `json:"device" example:"/dev/video20" doc:"Sink device"`
	Mode      string `json:"mode" example:"file" doc:"Requested stream mode"`
	Source    string `json:"source,omitempty" example:"/home/user/clip.mp4" doc:"Requested source"`
	Error     string `json:"error" example:"exec: \"ffmpeg\": executable file not found in $PATH" doc:"Failure reason"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStartFailedEvent.
func (e StreamStartFailedEvent) Type() uint32 { return TypeStreamStartFailed }

// StreamOutputEvent carries one diagnostic line from the running transcoder.
type StreamOutputEvent struct {
	RunID     string `json:"run_id" doc:"Identifier of the stream run"`
	Line      string `json:"line" example:"[info] Output #0, v4l2, to '/dev/video20':" doc:"Diagnostic line"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamOutputEvent.
func (e StreamOutputEvent) Type() uint32 { return TypeStreamOutput }

// JobProgressEvent is one unit of work done by a background job.
type JobProgressEvent struct {
	JobID     uint64 `json:"job_id" example:"3" doc:"Job identifier"`
	Kind      string `json:"kind" example:"discovery" doc:"Job kind: discovery, preview or icons"`
	Step      int    `json:"step" example:"12" doc:"Units completed so far"`
	Total     int    `json:"total,omitempty" example:"40" doc:"Total units when known"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobProgressEvent.
func (e JobProgressEvent) Type() uint32 { return TypeJobProgress }

// JobLogEvent is a human readable message from a background job.
type JobLogEvent struct {
	JobID     uint64 `json:"job_id" example:"3" doc:"Job identifier"`
	Kind      string `json:"kind" example:"discovery" doc:"Job kind"`
	Message   string `json:"message" example:"Searching..." doc:"Log message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobLogEvent.
func (e JobLogEvent) Type() uint32 { return TypeJobLog }

// JobCompletedEvent is the terminal event of a job that ran to the end.
type JobCompletedEvent struct {
	JobID     uint64  `json:"job_id" example:"3" doc:"Job identifier"`
	Kind      string  `json:"kind" example:"discovery" doc:"Job kind"`
	Target    string  `json:"target" example:"/home/user/videos" doc:"Directory or source the job worked on"`
	Elapsed   float64 `json:"elapsed_seconds" example:"1.42" doc:"Run time in seconds"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobCompletedEvent.
func (e JobCompletedEvent) Type() uint32 { return TypeJobCompleted }

// JobAbortedEvent is the terminal event of a job stopped by an abort request.
type JobAbortedEvent struct {
	JobID     uint64  `json:"job_id" example:"3" doc:"Job identifier"`
	Kind      string  `json:"kind" example:"discovery" doc:"Job kind"`
	Target    string  `json:"target" example:"/home/user/videos" doc:"Directory or source the job worked on"`
	Elapsed   float64 `json:"elapsed_seconds" example:"0.2" doc:"Run time in seconds"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobAbortedEvent.
func (e JobAbortedEvent) Type() uint32 { return TypeJobAborted }

// JobFailedEvent is the terminal event of a job that hit an unrecoverable error.
type JobFailedEvent struct {
	JobID     uint64  `json:"job_id" example:"3" doc:"Job identifier"`
	Kind      string  `json:"kind" example:"preview" doc:"Job kind"`
	Target    string  `json:"target" example:"/home/user/clip.mp4" doc:"Directory or source the job worked on"`
	Error     string  `json:"error" example:"probe /home/user/clip.mp4: no video stream" doc:"Failure reason"`
	Elapsed   float64 `json:"elapsed_seconds" example:"0.3" doc:"Run time in seconds"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobFailedEvent.
func (e JobFailedEvent) Type() uint32 { return TypeJobFailed }

// SourcesChangedEvent reports the registry size after it was modified.
type SourcesChangedEvent struct {
	Count     int    `json:"count" example:"17" doc:"Number of registered sources"`
	Action    string `json:"action" example:"added" doc:"Action type: added, removed, cleared"`
	Path      string `json:"path,omitempty" example:"/home/user/clip.mp4" doc:"Affected source, empty for clears"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SourcesChangedEvent.
func (e SourcesChangedEvent) Type() uint32 { return TypeSourcesChanged }

// LogEntryEvent mirrors one buffered log record.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"stream" doc:"Logger module"`
	Message    string         `json:"message" example:"Stream started" doc:"Log message"`
	RunID      string         `json:"run_id,omitempty" example:"0f6c2a9e-8d7b-4c1e-9a55-3f2b1c0d9e8f" doc:"Stream run that logged the entry"`
	JobID      uint64         `json:"job_id,omitempty" example:"12" doc:"Background job that logged the entry"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
