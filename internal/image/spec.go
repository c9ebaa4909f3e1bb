package image

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// PackagesDir is the fixed directory the builder phase writes its
// installable packages into. It is the only path that crosses the
// builder/release boundary.
const PackagesDir = "/opt/slipway/packages"

const (
	defaultTag     = "latest"
	defaultWorkdir = "/srv/app"
	defaultMode    = "production"
)

// Spec is one image definition: a heavyweight builder phase that
// compiles dependencies into packages, and a minimal release phase that
// installs those packages, ships the source and drops privileges.
type Spec struct {
	Repository string      `yaml:"repository"`
	Tag        string      `yaml:"tag"`
	Builder    BuilderSpec `yaml:"builder"`
	Release    ReleaseSpec `yaml:"release"`
}

type BuilderSpec struct {
	Base     string `yaml:"base"`
	Manifest string `yaml:"manifest"`
	Command  string `yaml:"command"`
}

// ReleaseSpec describes the runtime image. Install must consume the
// builder's packages only; it runs with no manifest and no toolchain
// present. User is the runtime identity the image starts as.
type ReleaseSpec struct {
	Base       string   `yaml:"base"`
	Source     []string `yaml:"source"`
	Workdir    string   `yaml:"workdir"`
	User       string   `yaml:"user"`
	Install    string   `yaml:"install"`
	Entrypoint string   `yaml:"entrypoint"`
	Mode       string   `yaml:"mode"`
}

// LoadSpec reads, defaults and validates an image spec file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image spec: %w", err)
	}

	spec := &Spec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, SpecError{
			Message: fmt.Sprintf("parsing image spec %s: %s", filepath.Base(path), err),
		}
	}

	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func (s *Spec) ApplyDefaults() {
	if s.Tag == "" {
		s.Tag = defaultTag
	}
	if s.Release.Workdir == "" {
		s.Release.Workdir = defaultWorkdir
	}
	if s.Release.Mode == "" {
		s.Release.Mode = defaultMode
	}
}

func (s *Spec) Validate() error {
	if s.Repository == "" {
		return SpecError{Message: "image repository is empty"}
	}
	if s.Builder.Base == "" {
		return SpecError{Message: "builder base image is empty"}
	}
	if s.Builder.Manifest == "" {
		return SpecError{Message: "builder has no dependency manifest"}
	}
	if s.Builder.Command == "" {
		return SpecError{Message: "builder has no package build command"}
	}
	if s.Release.Base == "" {
		return SpecError{Message: "release base image is empty"}
	}
	if len(s.Release.Source) == 0 {
		return SpecError{Message: "release has no source files"}
	}
	if s.Release.Install == "" {
		return SpecError{Message: "release has no install command"}
	}
	if s.Release.Entrypoint == "" {
		return SpecError{Message: "release has no entrypoint"}
	}
	if s.Release.User == "" {
		return SpecError{Message: "release has no runtime user"}
	}
	if s.Release.User == "root" || s.Release.User == "0" {
		return SpecError{Message: "release must not run as a privileged user"}
	}
	return nil
}

// ReleaseTag is the floating tag applied to the release image. The
// pipeline hand-off uses the immutable image ID, never this tag.
func (s *Spec) ReleaseTag() string {
	return s.Repository + ":" + s.Tag
}

func (s *Spec) BuilderTag() string {
	return s.Repository + ":" + s.Tag + "-builder"
}
