package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/rcn8397/v4l2loopback-tricks/internal/api/models"
	"github.com/rcn8397/v4l2loopback-tricks/internal/jobs"
	"github.com/rcn8397/v4l2loopback-tricks/internal/media"
)

func (s *Server) registerSourceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sources",
		Method:      http.MethodGet,
		Path:        "/api/sources",
		Summary:     "List Sources",
		Description: "List registered media files in discovery order",
		Tags:        []string{"sources"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SourceListResponse, error) {
		list := lo.Map(s.options.Registry.Snapshot(), func(src media.Source, i int) models.SourceData {
			return s.sourceData(src, i)
		})
		return &models.SourceListResponse{
			Body: models.SourceListData{Sources: list, Count: len(list)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-source",
		Method:      http.MethodGet,
		Path:        "/api/sources/{key}",
		Summary:     "Get Source",
		Description: "Look up a source by registry index or file name",
		Tags:        []string{"sources"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.SourceKeyInput) (*models.SourceResponse, error) {
		src, i, err := s.options.Registry.Lookup(input.Key)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return &models.SourceResponse{Body: s.sourceData(src, i)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "add-sources",
		Method:        http.MethodPost,
		Path:          "/api/sources",
		Summary:       "Add Sources",
		Description:   "Register media files by path. Files already registered are skipped.",
		Tags:          []string{"sources"},
		Security:      withAuth(),
		DefaultStatus: http.StatusOK,
		Errors:        []int{401, 422},
	}, func(_ context.Context, input *models.SourceAddRequest) (*models.SourceAddResponse, error) {
		for _, path := range input.Body.Paths {
			info, err := s.fs.Stat(path)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity(fmt.Sprintf("cannot read %s", path), err)
			}
			if info.IsDir() {
				return nil, huma.Error422UnprocessableEntity(fmt.Sprintf("%s is a directory, use /api/sources/scan", path))
			}
		}

		result := models.SourceAddResult{Added: []string{}}
		for _, path := range input.Body.Paths {
			if s.options.Registry.Add(path) {
				result.Added = append(result.Added, path)
			} else {
				result.Skipped = append(result.Skipped, path)
			}
		}
		result.Count = s.options.Registry.Len()
		return &models.SourceAddResponse{Body: result}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "remove-source",
		Method:        http.MethodDelete,
		Path:          "/api/sources/{key}",
		Summary:       "Remove Source",
		Description:   "Unregister one source. Generated artifacts stay on disk.",
		Tags:          []string{"sources"},
		Security:      withAuth(),
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404},
	}, func(_ context.Context, input *models.SourceKeyInput) (*struct{}, error) {
		src, _, err := s.options.Registry.Lookup(input.Key)
		if err != nil {
			return nil, toHTTPError(err)
		}
		s.options.Registry.Remove(src.Path)
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "clear-sources",
		Method:        http.MethodDelete,
		Path:          "/api/sources",
		Summary:       "Clear Sources",
		Description:   "Unregister every source",
		Tags:          []string{"sources"},
		Security:      withAuth(),
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401},
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		s.options.Registry.Clear()
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "scan-sources",
		Method:      http.MethodPost,
		Path:        "/api/sources/scan",
		Summary:     "Scan Directory",
		Description: "Start a discovery job that registers every playable file under root. Icons and previews follow when enabled in the settings.",
		Tags:        []string{"sources", "jobs"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 503},
	}, func(_ context.Context, input *models.ScanRequest) (*models.JobStartedResponse, error) {
		controller, err := s.jobs()
		if err != nil {
			return nil, err
		}
		if ok, _ := afero.DirExists(s.fs, input.Body.Root); !ok {
			return nil, huma.Error404NotFound(fmt.Sprintf("directory not found: %s", input.Body.Root))
		}
		id, err := controller.StartDiscovery(input.Body.Root, input.Body.Clear)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return jobStarted(id, jobs.KindDiscovery, input.Body.Root), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "build-preview",
		Method:      http.MethodPost,
		Path:        "/api/sources/{key}/preview",
		Summary:     "Build Preview",
		Description: "Start a job sampling frames of the source into an animated GIF",
		Tags:        []string{"sources", "jobs"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 503},
	}, func(_ context.Context, input *models.ArtifactRequest) (*models.JobStartedResponse, error) {
		controller, err := s.jobs()
		if err != nil {
			return nil, err
		}
		src, _, err := s.options.Registry.Lookup(input.Key)
		if err != nil {
			return nil, toHTTPError(err)
		}
		overwrite := input.Body != nil && input.Body.Overwrite
		id, err := controller.StartPreview(src.Path, overwrite)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return jobStarted(id, jobs.KindPreview, src.Path), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-preview",
		Method:      http.MethodGet,
		Path:        "/api/sources/{key}/preview",
		Summary:     "Get Preview",
		Description: "Download the animated preview of a source",
		Tags:        []string{"sources"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.SourceKeyInput) (*models.ImageResponse, error) {
		return s.artifact(input.Key, "image/gif", s.options.Layout.PreviewPath)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-icon",
		Method:      http.MethodGet,
		Path:        "/api/sources/{key}/icon",
		Summary:     "Get Icon",
		Description: "Download the icon of a source",
		Tags:        []string{"sources"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *models.SourceKeyInput) (*models.ImageResponse, error) {
		return s.artifact(input.Key, "image/jpeg", s.options.Layout.IconPath)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "build-icons",
		Method:      http.MethodPost,
		Path:        "/api/icons",
		Summary:     "Build Icons",
		Description: "Start a job generating icons for the given sources, or for the whole registry",
		Tags:        []string{"sources", "jobs"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 503},
	}, func(_ context.Context, input *models.IconsRequest) (*models.JobStartedResponse, error) {
		controller, err := s.jobs()
		if err != nil {
			return nil, err
		}
		paths := make([]string, 0, len(input.Body.Sources))
		for _, key := range input.Body.Sources {
			src, _, err := s.options.Registry.Lookup(key)
			if err != nil {
				return nil, toHTTPError(err)
			}
			paths = append(paths, src.Path)
		}
		id, err := controller.StartIcons(paths, input.Body.Overwrite)
		if err != nil {
			return nil, toHTTPError(err)
		}
		target := "library"
		if len(paths) == 1 {
			target = paths[0]
		}
		return jobStarted(id, jobs.KindIcons, target), nil
	})
}

func (s *Server) sourceData(src media.Source, index int) models.SourceData {
	layout := s.options.Layout
	return models.SourceData{
		Index:      index,
		Source:     src,
		HasIcon:    layout.Root != "" && layout.Exists(layout.IconPath(src.Path)),
		HasPreview: layout.Root != "" && layout.Exists(layout.PreviewPath(src.Path)),
	}
}

func (s *Server) artifact(key, contentType string, locate func(string) string) (*models.ImageResponse, error) {
	src, _, err := s.options.Registry.Lookup(key)
	if err != nil {
		return nil, toHTTPError(err)
	}
	path := locate(src.Path)
	data, err := s.options.Layout.ReadFile(path)
	if err != nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("no artifact for %s yet", src.Name))
	}
	return &models.ImageResponse{
		ContentType:  contentType,
		CacheControl: "no-cache",
		Body:         data,
	}, nil
}

func jobStarted(id uint64, kind jobs.Kind, target string) *models.JobStartedResponse {
	return &models.JobStartedResponse{
		Status: http.StatusAccepted,
		Body:   models.JobStartedData{ID: id, Kind: string(kind), Target: target},
	}
}
