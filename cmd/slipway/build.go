package main

import (
	"fmt"

	"github.com/slipway-ci/slipway/internal"
	"github.com/slipway-ci/slipway/internal/image"
	"github.com/spf13/cobra"
)

var (
	buildSpecPath string
	buildContext  string
	buildEngine   string

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build a release image from an image spec",
		Long: `Build an application image in two phases: a builder image compiles
the dependency packages, then a separate release image copies only
those packages in. The release never contains the build toolchain and
never runs as root.`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}
)

func init() {
	buildCmd.Flags().StringVar(&buildSpecPath, "spec", "", "image spec file")
	buildCmd.Flags().StringVar(&buildContext, "context", "",
		"build context directory (default: the spec file's directory)")
	buildCmd.Flags().StringVar(&buildEngine, "engine", "",
		"container engine, docker or podman (default: first found on PATH)")
	buildCmd.MarkFlagRequired("spec")
}

func runBuild(cmd *cobra.Command, args []string) error {
	var (
		engine *image.CLIEngine
		err    error
	)
	switch buildEngine {
	case "":
		engine, err = image.DetectEngine()
		if err != nil {
			return &ExitError{Code: internal.ExitConfig, Err: err}
		}
	case "docker", "podman":
		engine = image.NewCLIEngine(buildEngine)
	default:
		return &ExitError{
			Code: internal.ExitConfig,
			Err:  fmt.Errorf("unknown container engine %q", buildEngine),
		}
	}

	spec, err := image.LoadSpec(buildSpecPath)
	if err != nil {
		return &ExitError{Code: internal.ExitConfig, Err: err}
	}

	builder := image.NewBuilder(engine, buildContext)
	outputCh := make(chan string, 64)
	done := make(chan struct{})
	go func() {
		for line := range outputCh {
			fmt.Print(line)
		}
		close(done)
	}()

	builderRef, releaseRef, err := builder.BuildFromSpec(cmd.Context(), buildSpecPath, outputCh)
	close(outputCh)
	<-done
	if err != nil {
		return &ExitError{Code: internal.ExitBuildFailed, Err: err}
	}

	fmt.Printf("builder image: %s\n", builderRef)
	fmt.Printf("release image: %s (%s)\n", releaseRef, spec.ReleaseTag())
	fmt.Printf("startup:       %s %s as %s\n",
		spec.Release.Entrypoint, spec.Release.Mode, spec.Release.User)
	return nil
}
