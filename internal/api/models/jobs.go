package models

import "github.com/rcn8397/v4l2loopback-tricks/internal/jobs"

type JobStartedData struct {
	ID     uint64 `json:"id" example:"3" doc:"Job identifier"`
	Kind   string `json:"kind" example:"discovery" doc:"Job kind"`
	Target string `json:"target" example:"/home/user/videos" doc:"Directory or source"`
}

type JobStartedResponse struct {
	Status int
	Body   JobStartedData
}

type JobListData struct {
	Jobs  []jobs.Info `json:"jobs" doc:"Running jobs ordered by id"`
	Count int         `json:"count" example:"1" doc:"Number of running jobs"`
}

type JobListResponse struct {
	Body JobListData
}

type JobIDInput struct {
	ID uint64 `path:"id" example:"3" doc:"Job identifier"`
}
