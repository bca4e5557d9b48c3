package models

import "github.com/rcn8397/v4l2loopback-tricks/internal/events"

type LogsInput struct {
	Limit  int    `query:"limit" minimum:"0" maximum:"1000" default:"100" doc:"Most recent entries to return, 0 for all"`
	Module string `query:"module" example:"stream" doc:"Only entries from this module"`
	RunID  string `query:"run_id" doc:"Only entries logged by this stream run"`
	JobID  uint64 `query:"job_id" doc:"Only entries logged by this job"`
}

type LogsData struct {
	Entries []events.LogEntryEvent `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int                    `json:"count" example:"100" doc:"Number of entries"`
}

type LogsResponse struct {
	Body LogsData
}
