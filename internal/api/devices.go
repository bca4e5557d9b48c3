package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/rcn8397/v4l2loopback-tricks/internal/api/models"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List video device nodes with their driver and whether they are loopback sinks",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500, 503},
	}, func(_ context.Context, _ *struct{}) (*models.DeviceListResponse, error) {
		if s.options.Devices == nil {
			return nil, huma.Error503ServiceUnavailable("device listing is not available")
		}
		list, err := s.options.Devices.List()
		if err != nil {
			s.logger.Error("Failed to list devices", "error", err)
			return nil, huma.Error500InternalServerError("Failed to list devices", err)
		}
		return &models.DeviceListResponse{
			Body: models.DeviceListData{Devices: list, Count: len(list)},
		}, nil
	})
}
