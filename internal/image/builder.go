package image

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// BuilderArtifact is the immutable image ID produced by the builder
// phase. The release phase consumes it by value; no other builder state
// crosses the boundary.
type BuilderArtifact string

// ReleaseArtifact is the immutable image ID of the finished runtime
// image.
type ReleaseArtifact string

// Builder runs the two image phases in order through an Engine.
type Builder struct {
	engine     Engine
	contextDir string
}

// NewBuilder wires an engine and an optional build context directory.
// An empty contextDir defers to the directory of the spec file at build
// time.
func NewBuilder(engine Engine, contextDir string) *Builder {
	return &Builder{engine: engine, contextDir: contextDir}
}

// BuildBuilderStage compiles the manifest's dependencies into packages
// and returns the pinned builder image ID.
func (b *Builder) BuildBuilderStage(
	ctx context.Context,
	spec *Spec,
	outputCh chan<- string,
) (BuilderArtifact, error) {
	id, err := b.engine.Build(ctx, BuildOptions{
		Dockerfile: BuilderDockerfile(spec),
		ContextDir: b.contextDir,
		Tag:        spec.BuilderTag(),
	}, outputCh)
	if err != nil {
		return "", DependencyInstallError{Manifest: spec.Builder.Manifest, Err: err}
	}
	return BuilderArtifact(id), nil
}

// BuildReleaseStage assembles the runtime image from the builder
// artifact's packages and verifies the image starts as the declared
// runtime user.
func (b *Builder) BuildReleaseStage(
	ctx context.Context,
	spec *Spec,
	artifact BuilderArtifact,
	outputCh chan<- string,
) (ReleaseArtifact, error) {
	if artifact == "" {
		return "", ArtifactCopyError{Err: errors.New("builder artifact reference is empty")}
	}

	id, err := b.engine.Build(ctx, BuildOptions{
		Dockerfile: ReleaseDockerfile(spec, artifact),
		ContextDir: b.contextDir,
		Tag:        spec.ReleaseTag(),
	}, outputCh)
	if err != nil {
		return "", ArtifactCopyError{Artifact: artifact, Err: err}
	}

	user, err := b.engine.Inspect(ctx, id, "{{.Config.User}}")
	if err != nil {
		return "", ArtifactCopyError{Artifact: artifact, Err: err}
	}
	if user != spec.Release.User {
		return "", ArtifactCopyError{
			Artifact: artifact,
			Err:      fmt.Errorf("release image user is %q, want %q", user, spec.Release.User),
		}
	}

	return ReleaseArtifact(id), nil
}

// Build runs builder then release. A builder failure halts the build;
// no release artifact is ever produced from a failed builder phase.
func (b *Builder) Build(
	ctx context.Context,
	spec *Spec,
	outputCh chan<- string,
) (BuilderArtifact, ReleaseArtifact, error) {
	builderArtifact, err := b.BuildBuilderStage(ctx, spec, outputCh)
	if err != nil {
		return "", "", err
	}

	releaseArtifact, err := b.BuildReleaseStage(ctx, spec, builderArtifact, outputCh)
	if err != nil {
		return builderArtifact, "", err
	}
	return builderArtifact, releaseArtifact, nil
}

// BuildFromSpec loads and validates a spec file and builds both phases,
// defaulting the build context to the spec file's directory. It
// satisfies the pipeline's image builder contract.
func (b *Builder) BuildFromSpec(
	ctx context.Context,
	specPath string,
	outputCh chan<- string,
) (string, string, error) {
	spec, err := LoadSpec(specPath)
	if err != nil {
		return "", "", err
	}

	stage := b
	if stage.contextDir == "" {
		stage = NewBuilder(b.engine, filepath.Dir(specPath))
	}

	builderArtifact, releaseArtifact, err := stage.Build(ctx, spec, outputCh)
	return string(builderArtifact), string(releaseArtifact), err
}

// SaveImage exports an image to a tar archive, for shipping a release
// to a remote deploy host.
func (b *Builder) SaveImage(ctx context.Context, ref, destPath string) error {
	return b.engine.Save(ctx, ref, destPath)
}
