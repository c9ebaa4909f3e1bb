package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webImageYAML = `
repository: registry.example.com/acme/web
tag: "1.4.2"
builder:
  base: python:3.12-bookworm
  manifest: requirements.txt
  command: pip wheel --wheel-dir /opt/slipway/packages -r requirements.txt
release:
  base: python:3.12-slim-bookworm
  source:
    - app
    - static
  workdir: /srv/web
  user: webapp
  install: pip install --no-index /opt/slipway/packages/*.whl
  entrypoint: ./entry.sh
  mode: production
`

func writeSpecFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "web-image.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validSpec() *Spec {
	return &Spec{
		Repository: "registry.example.com/acme/web",
		Tag:        "1.4.2",
		Builder: BuilderSpec{
			Base:     "python:3.12-bookworm",
			Manifest: "requirements.txt",
			Command:  "pip wheel --wheel-dir /opt/slipway/packages -r requirements.txt",
		},
		Release: ReleaseSpec{
			Base:       "python:3.12-slim-bookworm",
			Source:     []string{"app", "static"},
			Workdir:    "/srv/web",
			User:       "webapp",
			Install:    "pip install --no-index /opt/slipway/packages/*.whl",
			Entrypoint: "./entry.sh",
			Mode:       "production",
		},
	}
}

func TestLoadSpec(t *testing.T) {
	t.Run("success - full spec", func(t *testing.T) {
		// arrange
		path := writeSpecFile(t, webImageYAML)

		// act
		spec, err := LoadSpec(path)

		// assert
		require.NoError(t, err)
		assert.Equal(t, "registry.example.com/acme/web", spec.Repository)
		assert.Equal(t, "python:3.12-bookworm", spec.Builder.Base)
		assert.Equal(t, "requirements.txt", spec.Builder.Manifest)
		assert.Equal(t, []string{"app", "static"}, spec.Release.Source)
		assert.Equal(t, "webapp", spec.Release.User)
		assert.Equal(t, "registry.example.com/acme/web:1.4.2", spec.ReleaseTag())
		assert.Equal(t, "registry.example.com/acme/web:1.4.2-builder", spec.BuilderTag())
	})

	t.Run("success - tag, workdir and mode have defaults", func(t *testing.T) {
		// arrange
		path := writeSpecFile(t, `
repository: acme/web
builder:
  base: python:3.12-bookworm
  manifest: requirements.txt
  command: pip wheel --wheel-dir /opt/slipway/packages -r requirements.txt
release:
  base: python:3.12-slim-bookworm
  source: [app]
  user: webapp
  install: pip install --no-index /opt/slipway/packages/*.whl
  entrypoint: ./entry.sh
`)

		// act
		spec, err := LoadSpec(path)

		// assert
		require.NoError(t, err)
		assert.Equal(t, "latest", spec.Tag)
		assert.Equal(t, "/srv/app", spec.Release.Workdir)
		assert.Equal(t, "production", spec.Release.Mode)
	})

	t.Run("fail - unparseable yaml", func(t *testing.T) {
		// arrange
		path := writeSpecFile(t, "repository: [")

		// act
		_, err := LoadSpec(path)

		// assert
		var specErr SpecError
		assert.ErrorAs(t, err, &specErr)
	})

	t.Run("fail - missing file", func(t *testing.T) {
		_, err := LoadSpec(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Spec)
		wantErr string
	}{
		{
			name:    "missing repository",
			mutate:  func(s *Spec) { s.Repository = "" },
			wantErr: "repository",
		},
		{
			name:    "missing builder base",
			mutate:  func(s *Spec) { s.Builder.Base = "" },
			wantErr: "builder base",
		},
		{
			name:    "missing dependency manifest",
			mutate:  func(s *Spec) { s.Builder.Manifest = "" },
			wantErr: "manifest",
		},
		{
			name:    "missing build command",
			mutate:  func(s *Spec) { s.Builder.Command = "" },
			wantErr: "build command",
		},
		{
			name:    "missing release base",
			mutate:  func(s *Spec) { s.Release.Base = "" },
			wantErr: "release base",
		},
		{
			name:    "missing source files",
			mutate:  func(s *Spec) { s.Release.Source = nil },
			wantErr: "source",
		},
		{
			name:    "missing install command",
			mutate:  func(s *Spec) { s.Release.Install = "" },
			wantErr: "install",
		},
		{
			name:    "missing entrypoint",
			mutate:  func(s *Spec) { s.Release.Entrypoint = "" },
			wantErr: "entrypoint",
		},
		{
			name:    "missing runtime user",
			mutate:  func(s *Spec) { s.Release.User = "" },
			wantErr: "user",
		},
		{
			name:    "root runtime user",
			mutate:  func(s *Spec) { s.Release.User = "root" },
			wantErr: "privileged",
		},
		{
			name:    "uid zero runtime user",
			mutate:  func(s *Spec) { s.Release.User = "0" },
			wantErr: "privileged",
		},
	}

	for _, test := range tests {
		t.Run("fail - "+test.name, func(t *testing.T) {
			// arrange
			spec := validSpec()
			test.mutate(spec)

			// act
			err := spec.Validate()

			// assert
			var specErr SpecError
			assert.ErrorAs(t, err, &specErr)
			assert.Contains(t, err.Error(), test.wantErr)
		})
	}

	t.Run("success - valid spec", func(t *testing.T) {
		assert.NoError(t, validSpec().Validate())
	})
}
