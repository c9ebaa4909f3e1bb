package store

import (
	"context"
	"time"
)

// ImageBuild records one completed builder/release cycle: the pinned
// builder image reference and the release image reference that was
// assembled from its packages.
type ImageBuild struct {
	ImageBuildID int64     `json:"image_build_id"`
	RunID        *int64    `json:"run_id"`
	Name         string    `json:"name"`
	BuilderRef   string    `json:"builder_ref"`
	ReleaseRef   string    `json:"release_ref"`
	CreatedOn    time.Time `json:"created_on"`
}

type ImageBuildStore interface {
	CreateImageBuild(context.Context, *int64, string, string, string) (*ImageBuild, error)
	ReadLatestImageBuild(context.Context, string) (*ImageBuild, error)
	ListImageBuilds(context.Context, string, int64) ([]ImageBuild, error)
}
