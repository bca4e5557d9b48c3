package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/rcn8397/v4l2loopback-tricks/internal/api/models"
	"github.com/rcn8397/v4l2loopback-tricks/internal/jobs"
)

func (s *Server) registerJobRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/api/jobs",
		Summary:     "List Jobs",
		Description: "List running background jobs",
		Tags:        []string{"jobs"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(_ context.Context, _ *struct{}) (*models.JobListResponse, error) {
		controller, err := s.jobs()
		if err != nil {
			return nil, err
		}
		list := controller.List()
		if list == nil {
			list = []jobs.Info{}
		}
		return &models.JobListResponse{
			Body: models.JobListData{Jobs: list, Count: len(list)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "abort-job",
		Method:        http.MethodDelete,
		Path:          "/api/jobs/{id}",
		Summary:       "Abort Job",
		Description:   "Ask a running job to stop at its next checkpoint",
		Tags:          []string{"jobs"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 404, 503},
	}, func(_ context.Context, input *models.JobIDInput) (*struct{}, error) {
		controller, err := s.jobs()
		if err != nil {
			return nil, err
		}
		if err := controller.Abort(input.ID); err != nil {
			return nil, toHTTPError(err)
		}
		s.logger.Info("Job abort requested", "job_id", input.ID)
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "abort-all-jobs",
		Method:        http.MethodDelete,
		Path:          "/api/jobs",
		Summary:       "Abort All Jobs",
		Description:   "Ask every running job to stop",
		Tags:          []string{"jobs"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 503},
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		controller, err := s.jobs()
		if err != nil {
			return nil, err
		}
		controller.AbortAll()
		return nil, nil
	})
}

func (s *Server) jobs() (JobController, error) {
	if s.options.Jobs == nil {
		return nil, huma.Error503ServiceUnavailable("job coordinator is not available")
	}
	return s.options.Jobs, nil
}
