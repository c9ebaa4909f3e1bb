package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// CommandSpec is one shell command together with its working directory,
// extra environment and timeout.
type CommandSpec struct {
	Script  string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// CommandRunner executes a single step and streams its combined output
// line by line. The returned int is the command's exit code; a non-nil
// error means the command never produced one (failed to start, timed
// out, or was cancelled).
type CommandRunner interface {
	Run(ctx context.Context, spec CommandSpec, outputCh chan<- string) (int, error)
}

func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// LocalRunner runs steps on the host through the shell.
type LocalRunner struct{}

func (lr *LocalRunner) Run(
	ctx context.Context,
	spec CommandSpec,
	outputCh chan<- string,
) (int, error) {
	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", spec.Script)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.WaitDelay = 10 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, err
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("starting step %q: %w", spec.Script, err)
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

	err = cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return -1, RunCancelError{Message: "step cancelled"}
		}
		if runCtx.Err() != nil {
			return -1, fmt.Errorf(
				"step timed out after %s: %q", spec.Timeout, spec.Script,
			)
		}
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
