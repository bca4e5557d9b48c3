package models

import "github.com/rcn8397/v4l2loopback-tricks/internal/media"

type SourceData struct {
	Index int `json:"index" example:"0" doc:"Position in the registry"`
	media.Source
	HasIcon    bool `json:"has_icon" doc:"An icon has been generated"`
	HasPreview bool `json:"has_preview" doc:"An animated preview has been generated"`
}

type SourceListData struct {
	Sources []SourceData `json:"sources" doc:"Registered sources in discovery order"`
	Count   int          `json:"count" example:"17" doc:"Number of sources"`
}

type SourceListResponse struct {
	Body SourceListData
}

type SourceResponse struct {
	Body SourceData
}

type SourceKeyInput struct {
	Key string `path:"key" example:"3" doc:"Registry index or file name"`
}

type SourceAddData struct {
	Paths []string `json:"paths" minItems:"1" example:"[\"/home/user/clip.mp4\"]" doc:"Media files to register"`
}

type SourceAddRequest struct {
	Body SourceAddData
}

type SourceAddResult struct {
	Added   []string `json:"added" doc:"Paths that were newly registered"`
	Skipped []string `json:"skipped,omitempty" doc:"Paths already registered"`
	Count   int      `json:"count" example:"18" doc:"Registry size afterwards"`
}

type SourceAddResponse struct {
	Body SourceAddResult
}

type ScanData struct {
	Root  string `json:"root" example:"/home/user/videos" doc:"Directory to search"`
	Clear bool   `json:"clear,omitempty" doc:"Empty the registry before searching"`
}

type ScanRequest struct {
	Body ScanData
}

type ArtifactOptions struct {
	Overwrite bool `json:"overwrite,omitempty" doc:"Regenerate artifacts that already exist"`
}

type ArtifactRequest struct {
	SourceKeyInput
	Body *ArtifactOptions `required:"false"`
}

type IconsData struct {
	Sources   []string `json:"sources,omitempty" doc:"Registry indexes or file names; empty means all"`
	Overwrite bool     `json:"overwrite,omitempty" doc:"Regenerate icons that already exist"`
}

type IconsRequest struct {
	Body IconsData
}

// ImageResponse carries a generated artifact.
type ImageResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}
