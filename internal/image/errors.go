package image

import "fmt"

// SpecError marks an image spec that fails validation before any engine
// work starts.
type SpecError struct {
	Message string
}

func (e SpecError) Error() string {
	return e.Message
}

// DependencyInstallError ends the builder phase: the toolchain image
// could not turn the manifest's dependencies into installable packages.
// No release phase runs after it.
type DependencyInstallError struct {
	Manifest string
	Err      error
}

func (e DependencyInstallError) Error() string {
	return fmt.Sprintf("building packages from %s: %s", e.Manifest, e.Err)
}

func (e DependencyInstallError) Unwrap() error {
	return e.Err
}

// ArtifactCopyError ends the release phase: assembling the runtime
// image from the builder's packages failed, or the assembled image does
// not match its contract.
type ArtifactCopyError struct {
	Artifact BuilderArtifact
	Err      error
}

func (e ArtifactCopyError) Error() string {
	return fmt.Sprintf("assembling release from builder artifact: %s", e.Err)
}

func (e ArtifactCopyError) Unwrap() error {
	return e.Err
}
