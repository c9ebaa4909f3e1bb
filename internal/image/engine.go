package image

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Engine abstracts the container runtime CLI. Build returns the built
// image's immutable ID, never a floating tag.
type Engine interface {
	Name() string
	Build(ctx context.Context, opts BuildOptions, outputCh chan<- string) (string, error)
	ImageExists(ctx context.Context, ref string) (bool, error)
	Inspect(ctx context.Context, ref, format string) (string, error)
	Save(ctx context.Context, ref, destPath string) error
}

type BuildOptions struct {
	Dockerfile string
	ContextDir string
	Tag        string
}

// DetectEngine picks the first container engine on PATH, docker before
// podman.
func DetectEngine() (*CLIEngine, error) {
	for _, name := range []string{"docker", "podman"} {
		if _, err := exec.LookPath(name); err == nil {
			return NewCLIEngine(name), nil
		}
	}
	return nil, errors.New("no container engine on PATH, install docker or podman")
}

func NewCLIEngine(name string) *CLIEngine {
	return &CLIEngine{name: name}
}

// CLIEngine drives a container engine through its command line. docker
// and podman accept every verb used here with the same flags.
type CLIEngine struct {
	name string
}

func (e *CLIEngine) Name() string {
	return e.name
}

// Build feeds the synthesized Dockerfile to the engine on stdin, so it
// is never written into the build context, and captures the image ID
// through --iidfile.
func (e *CLIEngine) Build(
	ctx context.Context,
	opts BuildOptions,
	outputCh chan<- string,
) (string, error) {
	iidFile, err := os.CreateTemp("", "slipway-iid-*")
	if err != nil {
		return "", fmt.Errorf("creating iidfile: %w", err)
	}
	iidPath := iidFile.Name()
	if err := iidFile.Close(); err != nil {
		return "", fmt.Errorf("closing iidfile: %w", err)
	}
	defer os.Remove(iidPath)

	cmd := exec.CommandContext(ctx, e.name, buildArgs(opts, iidPath)...)
	cmd.Stdin = strings.NewReader(opts.Dockerfile)
	if err := e.stream(cmd, outputCh); err != nil {
		return "", err
	}

	id, err := os.ReadFile(iidPath)
	if err != nil {
		return "", fmt.Errorf("reading image id: %w", err)
	}
	return strings.TrimSpace(string(id)), nil
}

func buildArgs(opts BuildOptions, iidPath string) []string {
	args := []string{"build", "--file", "-", "--iidfile", iidPath}
	if opts.Tag != "" {
		args = append(args, "--tag", opts.Tag)
	}
	return append(args, opts.ContextDir)
}

func (e *CLIEngine) ImageExists(ctx context.Context, ref string) (bool, error) {
	cmd := exec.CommandContext(ctx, e.name, "image", "inspect", ref)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

func (e *CLIEngine) Inspect(ctx context.Context, ref, format string) (string, error) {
	out, err := exec.CommandContext(
		ctx, e.name, "inspect", "--format", format, ref,
	).Output()
	if err != nil {
		return "", fmt.Errorf("inspecting %s: %w", ref, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (e *CLIEngine) Save(ctx context.Context, ref, destPath string) error {
	out, err := exec.CommandContext(
		ctx, e.name, "save", "--output", destPath, ref,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("saving %s: %s: %w", ref, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (e *CLIEngine) stream(cmd *exec.Cmd, outputCh chan<- string) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", e.name, err)
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			outputCh <- scanner.Text() + "\n"
		}
	})
	wg.Go(func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			outputCh <- scanner.Text() + "\n"
		}
	})
	wg.Wait()

	return cmd.Wait()
}
