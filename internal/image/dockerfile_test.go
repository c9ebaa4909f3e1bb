package image

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDockerfile(t *testing.T) {
	t.Run("success - toolchain, manifest and package command", func(t *testing.T) {
		// arrange
		spec := validSpec()

		// act
		df := BuilderDockerfile(spec)

		// assert
		assert.Contains(t, df, "FROM python:3.12-bookworm\n")
		assert.Contains(t, df, "COPY requirements.txt ./\n")
		assert.Contains(t, df, "RUN mkdir -p /opt/slipway/packages\n")
		assert.Contains(t, df, "RUN pip wheel --wheel-dir /opt/slipway/packages -r requirements.txt\n")
	})
}

func TestReleaseDockerfile(t *testing.T) {
	spec := validSpec()
	artifact := BuilderArtifact("sha256:0a1b2c3d4e5f")
	df := ReleaseDockerfile(spec, artifact)
	lines := strings.Split(strings.TrimSpace(df), "\n")

	t.Run("success - packages are the only cross-phase copy", func(t *testing.T) {
		crossPhase := 0
		for _, line := range lines {
			if strings.Contains(line, "--from=") {
				crossPhase++
				assert.Equal(
					t,
					"COPY --from=sha256:0a1b2c3d4e5f /opt/slipway/packages /opt/slipway/packages",
					line,
				)
			}
		}
		assert.Equal(t, 1, crossPhase)
	})

	t.Run("success - no toolchain or manifest in the release", func(t *testing.T) {
		assert.NotContains(t, df, spec.Builder.Base)
		assert.NotContains(t, df, spec.Builder.Manifest)
		assert.NotContains(t, df, "pip wheel")
	})

	t.Run("success - ownership fix precedes the user switch", func(t *testing.T) {
		chown := strings.Index(df, "RUN chown -R webapp:webapp /srv/web && chmod -R g+w /srv/web")
		user := strings.Index(df, "\nUSER webapp\n")
		require.Greater(t, chown, 0)
		require.Greater(t, user, 0)
		assert.Less(t, chown, user)
	})

	t.Run("success - user switch is the last mutation before cmd", func(t *testing.T) {
		require.GreaterOrEqual(t, len(lines), 2)
		assert.Equal(t, "USER webapp", lines[len(lines)-2])
		assert.Equal(t, `CMD ["./entry.sh", "production"]`, lines[len(lines)-1])
	})

	t.Run("success - source ships into the workdir", func(t *testing.T) {
		assert.Contains(t, df, "WORKDIR /srv/web\n")
		assert.Contains(t, df, "COPY app ./app\n")
		assert.Contains(t, df, "COPY static ./static\n")
	})

	t.Run("success - install runs against the prebuilt packages", func(t *testing.T) {
		assert.Contains(t, df, "RUN pip install --no-index /opt/slipway/packages/*.whl\n")
	})
}
