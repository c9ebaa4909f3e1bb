package image

import (
	"fmt"
	"strings"
)

// BuilderDockerfile synthesizes the builder phase. The build command's
// contract is to leave installable packages under PackagesDir; the
// toolchain, the manifest and everything else in this image are
// throwaway.
func BuilderDockerfile(spec *Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", spec.Builder.Base)
	fmt.Fprintf(&b, "WORKDIR /build\n")
	fmt.Fprintf(&b, "COPY %s ./\n", spec.Builder.Manifest)
	fmt.Fprintf(&b, "RUN mkdir -p %s\n", PackagesDir)
	fmt.Fprintf(&b, "RUN %s\n", spec.Builder.Command)
	return b.String()
}

// ReleaseDockerfile synthesizes the release phase against a pinned
// builder artifact. Only PackagesDir is copied across the phase
// boundary; the manifest and the toolchain base never appear here. The
// ownership fix runs before the USER switch, and the USER switch is the
// last mutation before CMD.
func ReleaseDockerfile(spec *Spec, artifact BuilderArtifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", spec.Release.Base)
	fmt.Fprintf(&b, "COPY --from=%s %s %s\n", artifact, PackagesDir, PackagesDir)
	fmt.Fprintf(&b, "RUN %s\n", spec.Release.Install)
	fmt.Fprintf(&b, "RUN useradd --create-home %s\n", spec.Release.User)
	fmt.Fprintf(&b, "WORKDIR %s\n", spec.Release.Workdir)
	for _, src := range spec.Release.Source {
		fmt.Fprintf(&b, "COPY %s ./%s\n", src, src)
	}
	fmt.Fprintf(
		&b, "RUN chown -R %[1]s:%[1]s %[2]s && chmod -R g+w %[2]s\n",
		spec.Release.User, spec.Release.Workdir,
	)
	fmt.Fprintf(&b, "USER %s\n", spec.Release.User)
	fmt.Fprintf(&b, "CMD [%q, %q]\n", spec.Release.Entrypoint, spec.Release.Mode)
	return b.String()
}
