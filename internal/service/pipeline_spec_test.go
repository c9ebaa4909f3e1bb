package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePipelineFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.Nil(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const webPipelineYAML = `
name: web
branches:
  - main
  - release
concurrency_group: site
concurrency_policy: replace
schedule:
  cron: "0 4 * * *"
  branch: main
image:
  spec: images/web.yml
test:
  steps:
    - name: unit tests
      script: make test
      timeout_seconds: 120
deploy:
  steps:
    - script: make deploy
  remote:
    host: deploy.example.com
    user: ci
    key_path: /etc/slipway/id_ed25519
    artifact: dist/app.tar.gz
    dest: /srv/app
`

func TestLoadDefinition(t *testing.T) {
	t.Run("success - parses a full definition", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		path := writePipelineFile(t, dir, "web.yml", webPipelineYAML)

		// act
		def, err := LoadDefinition(path)

		// assert
		require.Nil(t, err)
		assert.Equal(t, "web", def.Name)
		assert.Equal(t, []string{"main", "release"}, def.Branches)
		assert.Equal(t, "site", def.Group())
		assert.Equal(t, PolicyReplace, def.LockPolicy(PolicyQueue))
		require.NotNil(t, def.Schedule)
		assert.Equal(t, "0 4 * * *", def.Schedule.Cron)
		assert.Equal(t, "main", def.Schedule.Branch)
		require.NotNil(t, def.Image)
		assert.Equal(t, filepath.Join(dir, "images/web.yml"), def.Image.Spec)
		require.Len(t, def.Test.Steps, 1)
		assert.Equal(t, "unit tests", def.Test.Steps[0].Name)
		assert.Equal(t, "make test", def.Test.Steps[0].Script)
		assert.Equal(t, 2*time.Minute, def.Test.Steps[0].Timeout(time.Minute))
		require.Len(t, def.Deploy.Steps, 1)
		assert.Equal(t, "make deploy", def.Deploy.Steps[0].Script)
		require.NotNil(t, def.Deploy.Remote)
		assert.Equal(t, "deploy.example.com", def.Deploy.Remote.Host)
		assert.Equal(t, "ci", def.Deploy.Remote.User)
		assert.Equal(t, "/etc/slipway/id_ed25519", def.Deploy.Remote.KeyPath)
		assert.Equal(t, "dist/app.tar.gz", def.Deploy.Remote.Artifact)
		assert.Equal(t, "/srv/app", def.Deploy.Remote.Dest)
	})

	t.Run("success - name defaults to the sanitized file name", func(t *testing.T) {
		// arrange
		path := writePipelineFile(t, t.TempDir(), "My Web App.yml", `
branches:
  - main
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
`)

		// act
		def, err := LoadDefinition(path)

		// assert
		require.Nil(t, err)
		assert.Equal(t, "my-web-app", def.Name)
	})

	t.Run("fail - missing test steps", func(t *testing.T) {
		// arrange
		path := writePipelineFile(t, t.TempDir(), "web.yml", `
name: web
branches:
  - main
deploy:
  steps:
    - script: make deploy
`)

		// act
		_, err := LoadDefinition(path)

		// assert
		var configErr ConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Contains(t, configErr.Message, "no test steps")
	})

	t.Run("fail - unknown concurrency policy", func(t *testing.T) {
		// arrange
		path := writePipelineFile(t, t.TempDir(), "web.yml", `
name: web
branches:
  - main
concurrency_policy: pounce
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
`)

		// act
		_, err := LoadDefinition(path)

		// assert
		var configErr ConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Contains(t, configErr.Message, "concurrency policy")
	})

	t.Run("fail - schedule branch off the allow-list", func(t *testing.T) {
		// arrange
		path := writePipelineFile(t, t.TempDir(), "web.yml", `
name: web
branches:
  - main
schedule:
  cron: "0 4 * * *"
  branch: nightly
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
`)

		// act
		_, err := LoadDefinition(path)

		// assert
		var configErr ConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Contains(t, configErr.Message, "allow-list")
	})

	t.Run("fail - remote deploy without key_path", func(t *testing.T) {
		// arrange
		path := writePipelineFile(t, t.TempDir(), "web.yml", `
name: web
branches:
  - main
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
  remote:
    host: deploy.example.com
    user: ci
`)

		// act
		_, err := LoadDefinition(path)

		// assert
		var configErr ConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Contains(t, configErr.Message, "key_path")
	})

	t.Run("fail - image without a spec file", func(t *testing.T) {
		// arrange
		path := writePipelineFile(t, t.TempDir(), "web.yml", `
name: web
branches:
  - main
image:
  spec: ""
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
`)

		// act
		_, err := LoadDefinition(path)

		// assert
		var configErr ConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Contains(t, configErr.Message, "without a spec file")
	})

	t.Run("success - keeps an absolute image spec path", func(t *testing.T) {
		// arrange
		path := writePipelineFile(t, t.TempDir(), "web.yml", `
name: web
branches:
  - main
image:
  spec: /etc/slipway/images/web.yml
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
`)

		// act
		def, err := LoadDefinition(path)

		// assert
		require.Nil(t, err)
		assert.Equal(t, "/etc/slipway/images/web.yml", def.Image.Spec)
	})

	t.Run("fail - ship_image without a declared image", func(t *testing.T) {
		// arrange
		path := writePipelineFile(t, t.TempDir(), "web.yml", `
name: web
branches:
  - main
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
  remote:
    host: deploy.example.com
    user: ci
    key_path: /etc/slipway/id_ed25519
    dest: /srv/app
    ship_image: true
`)

		// act
		_, err := LoadDefinition(path)

		// assert
		var configErr ConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Contains(t, configErr.Message, "declares none")
	})

	t.Run("fail - unknown remote engine", func(t *testing.T) {
		// arrange
		path := writePipelineFile(t, t.TempDir(), "web.yml", `
name: web
branches:
  - main
image:
  spec: images/web.yml
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
  remote:
    host: deploy.example.com
    user: ci
    key_path: /etc/slipway/id_ed25519
    engine: runc
`)

		// act
		_, err := LoadDefinition(path)

		// assert
		var configErr ConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Contains(t, configErr.Message, "remote engine")
	})
}

func TestLoadDefinitions(t *testing.T) {
	t.Run("success - loads yaml files and skips everything else", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		writePipelineFile(t, dir, "web.yml", `
branches:
  - main
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
`)
		writePipelineFile(t, dir, "worker.yaml", `
branches:
  - main
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
`)
		writePipelineFile(t, dir, "README.md", "not a pipeline")

		// act
		defs, err := LoadDefinitions(dir)

		// assert
		require.Nil(t, err)
		assert.Len(t, defs, 2)
		assert.Contains(t, defs, "web")
		assert.Contains(t, defs, "worker")
	})

	t.Run("fail - duplicate pipeline names", func(t *testing.T) {
		// arrange
		dir := t.TempDir()
		writePipelineFile(t, dir, "a.yml", `
name: web
branches:
  - main
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
`)
		writePipelineFile(t, dir, "b.yml", `
name: web
branches:
  - main
test:
  steps:
    - script: make test
deploy:
  steps:
    - script: make deploy
`)

		// act
		_, err := LoadDefinitions(dir)

		// assert
		var configErr ConfigError
		require.ErrorAs(t, err, &configErr)
		assert.Contains(t, configErr.Message, "duplicate")
	})
}

func TestDefinitionDefaults(t *testing.T) {
	t.Run("success - group falls back to the pipeline name", func(t *testing.T) {
		// arrange
		def := &Definition{Name: "web"}

		// act & assert
		assert.Equal(t, "web", def.Group())
	})

	t.Run("success - lock policy falls back to the server default", func(t *testing.T) {
		// arrange
		def := &Definition{Name: "web"}

		// act & assert
		assert.Equal(t, PolicyQueue, def.LockPolicy(PolicyQueue))
		def.Policy = string(PolicyReplace)
		assert.Equal(t, PolicyReplace, def.LockPolicy(PolicyQueue))
	})

	t.Run("success - step timeout falls back when unset", func(t *testing.T) {
		// arrange
		step := StepSpec{Script: "make test"}

		// act & assert
		assert.Equal(t, 30*time.Second, step.Timeout(30*time.Second))
		step.TimeoutSeconds = 5
		assert.Equal(t, 5*time.Second, step.Timeout(30*time.Second))
	})

	t.Run("success - remote load engine defaults to docker", func(t *testing.T) {
		// arrange
		remote := &RemoteSpec{Host: "deploy.example.com"}

		// act & assert
		assert.Equal(t, "docker", remote.LoadEngine())
		remote.Engine = "podman"
		assert.Equal(t, "podman", remote.LoadEngine())
	})
}
