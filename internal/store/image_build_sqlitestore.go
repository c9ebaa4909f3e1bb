package store

import (
	"context"
	"database/sql"

	"github.com/georgysavva/scany/v2/sqlscan"
)

func NewImageBuildSQLiteStore(rdb, rwdb *sql.DB) *ImageBuildSQLiteStore {
	return &ImageBuildSQLiteStore{rdb, rwdb}
}

type ImageBuildSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func (store *ImageBuildSQLiteStore) CreateImageBuild(
	ctx context.Context,
	runID *int64,
	name, builderRef, releaseRef string,
) (*ImageBuild, error) {
	ib := &ImageBuild{
		RunID:      runID,
		Name:       name,
		BuilderRef: builderRef,
		ReleaseRef: releaseRef,
	}
	query := `insert into image_builds (run_id, name, builder_ref, release_ref)
	values ($1, $2, $3, $4)
	returning image_build_id, created_on`
	if err := sqlscan.Get(
		ctx, store.rwdb, ib, query,
		ib.RunID, ib.Name, ib.BuilderRef, ib.ReleaseRef,
	); err != nil {
		return nil, err
	}
	return ib, nil
}

func (store *ImageBuildSQLiteStore) ReadLatestImageBuild(
	ctx context.Context,
	name string,
) (*ImageBuild, error) {
	ib := new(ImageBuild)
	query := `select * from image_builds
	where name = $1
	order by created_on desc, image_build_id desc
	limit 1`
	if err := sqlscan.Get(ctx, store.rdb, ib, query, name); err != nil {
		return nil, err
	}
	return ib, nil
}

func (store *ImageBuildSQLiteStore) ListImageBuilds(
	ctx context.Context,
	name string,
	limit int64,
) ([]ImageBuild, error) {
	builds := make([]ImageBuild, 0)
	query := `select * from image_builds
	where name = $1
	order by created_on desc, image_build_id desc
	limit $2`
	err := sqlscan.Select(ctx, store.rdb, &builds, query, name, limit)
	return builds, err
}
