package image

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeEngineScript = `#!/bin/sh
verb="$1"
case "$verb" in
build)
	while [ $# -gt 0 ]; do
		if [ "$1" = "--iidfile" ]; then
			shift
			printf 'sha256:fake' > "$1"
		fi
		shift
	done
	cat > /dev/null
	echo "Step 1/2 : FROM base"
	echo "Successfully built"
	;;
image)
	case "$3" in
	present*) exit 0 ;;
	*) exit 1 ;;
	esac
	;;
inspect)
	printf 'webapp\n'
	;;
save)
	: > "$3"
	;;
esac
`

func writeFakeEngine(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func fakeEngine(t *testing.T) *CLIEngine {
	t.Helper()
	return NewCLIEngine(writeFakeEngine(t, t.TempDir(), "docker", fakeEngineScript))
}

func TestCLIEngineBuild(t *testing.T) {
	t.Run("success - streams output and returns the image id", func(t *testing.T) {
		// arrange
		engine := fakeEngine(t)
		output := make(chan string, 64)

		// act
		id, err := engine.Build(context.Background(), BuildOptions{
			Dockerfile: "FROM base\n",
			ContextDir: t.TempDir(),
			Tag:        "acme/web:latest",
		}, output)
		close(output)

		// assert
		require.NoError(t, err)
		assert.Equal(t, "sha256:fake", id)

		var sb strings.Builder
		for line := range output {
			sb.WriteString(line)
		}
		assert.Contains(t, sb.String(), "Step 1/2 : FROM base\n")
		assert.Contains(t, sb.String(), "Successfully built\n")
	})

	t.Run("fail - engine exits non-zero", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		engine := NewCLIEngine(writeFakeEngine(t, dir, "docker", "#!/bin/sh\ncat > /dev/null\nexit 1\n"))
		output := make(chan string, 64)

		// act
		_, err := engine.Build(context.Background(), BuildOptions{
			Dockerfile: "FROM base\n",
			ContextDir: dir,
		}, output)

		// assert
		assert.Error(t, err)
	})
}

func TestCLIEngineImageExists(t *testing.T) {
	t.Run("success - present and absent images", func(t *testing.T) {
		// arrange
		engine := fakeEngine(t)

		// act
		present, err1 := engine.ImageExists(context.Background(), "present:latest")
		absent, err2 := engine.ImageExists(context.Background(), "absent:latest")

		// assert
		assert.NoError(t, err1)
		assert.NoError(t, err2)
		assert.True(t, present)
		assert.False(t, absent)
	})
}

func TestCLIEngineInspect(t *testing.T) {
	t.Run("success - trims the formatted output", func(t *testing.T) {
		// arrange
		engine := fakeEngine(t)

		// act
		user, err := engine.Inspect(context.Background(), "sha256:fake", "{{.Config.User}}")

		// assert
		assert.NoError(t, err)
		assert.Equal(t, "webapp", user)
	})
}

func TestCLIEngineSave(t *testing.T) {
	t.Run("success - writes the archive", func(t *testing.T) {
		// arrange
		engine := fakeEngine(t)
		dest := filepath.Join(t.TempDir(), "release.tar")

		// act
		err := engine.Save(context.Background(), "sha256:fake", dest)

		// assert
		assert.NoError(t, err)
		_, statErr := os.Stat(dest)
		assert.NoError(t, statErr)
	})
}

func TestBuildArgs(t *testing.T) {
	t.Run("success - dockerfile from stdin with iidfile and tag", func(t *testing.T) {
		args := buildArgs(BuildOptions{ContextDir: "/src", Tag: "acme/web:1.0"}, "/tmp/iid")
		assert.Equal(
			t,
			[]string{"build", "--file", "-", "--iidfile", "/tmp/iid", "--tag", "acme/web:1.0", "/src"},
			args,
		)
	})

	t.Run("success - tag is optional", func(t *testing.T) {
		args := buildArgs(BuildOptions{ContextDir: "."}, "/tmp/iid")
		assert.NotContains(t, args, "--tag")
	})
}

func TestDetectEngine(t *testing.T) {
	t.Run("success - docker wins over podman", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		writeFakeEngine(t, dir, "docker", "#!/bin/sh\n")
		writeFakeEngine(t, dir, "podman", "#!/bin/sh\n")
		t.Setenv("PATH", dir)

		// act
		engine, err := DetectEngine()

		// assert
		require.NoError(t, err)
		assert.Equal(t, "docker", engine.Name())
	})

	t.Run("success - podman when docker is missing", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		writeFakeEngine(t, dir, "podman", "#!/bin/sh\n")
		t.Setenv("PATH", dir)

		// act
		engine, err := DetectEngine()

		// assert
		require.NoError(t, err)
		assert.Equal(t, "podman", engine.Name())
	})

	t.Run("fail - no engine on path", func(t *testing.T) {
		// arrange
		t.Setenv("PATH", t.TempDir())

		// act
		_, err := DetectEngine()

		// assert
		assert.Error(t, err)
	})
}
