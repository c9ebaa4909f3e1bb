package service

import "fmt"

type ErrRunQueueFull struct{}

func (e ErrRunQueueFull) Error() string {
	return "run queue is full"
}

func NewErrRunQueueFull() *ErrRunQueueFull {
	return &ErrRunQueueFull{}
}

type RunCancelError struct {
	Message string
}

func (rce RunCancelError) Error() string {
	return rce.Message
}

// ConfigError marks a run that failed before any stage produced a
// verdict: bad pipeline definition, unparseable data source string,
// missing deploy token.
type ConfigError struct {
	Message string
}

func (ce ConfigError) Error() string {
	return ce.Message
}

// TestStageError ends a run at the gate: either the test command ran
// and failed (ExitCode) or the stage never produced a verdict (Reason).
// The deploy stage is not reached in either case.
type TestStageError struct {
	ExitCode int
	Reason   string
}

func (e TestStageError) Error() string {
	if e.Reason != "" {
		return "test stage error: " + e.Reason
	}
	return fmt.Sprintf("test stage failed with exit code %d", e.ExitCode)
}

type DeployStageError struct {
	ExitCode int
	Reason   string
}

func (e DeployStageError) Error() string {
	if e.Reason != "" {
		return "deploy stage error: " + e.Reason
	}
	return fmt.Sprintf("deploy stage failed with exit code %d", e.ExitCode)
}

type BuildStageError struct {
	Message string
}

func (e BuildStageError) Error() string {
	return "image build failed: " + e.Message
}

type LockTimeoutError struct {
	Group string
}

func (e LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for deploy slot in group %q", e.Group)
}

// SupersededError is returned to a run waiting on a deploy slot when a
// newer run in the same group replaces it under the replace policy.
type SupersededError struct {
	Group string
}

func (e SupersededError) Error() string {
	return fmt.Sprintf("deploy superseded by a newer run in group %q", e.Group)
}

type UnknownPipelineError struct {
	Pipeline string
}

func (e UnknownPipelineError) Error() string {
	return fmt.Sprintf("unknown pipeline %q", e.Pipeline)
}

// BranchNotAllowedError signals a trigger for a branch outside the
// pipeline's allow-list. Handlers treat it as an acknowledged no-op, not
// a failure.
type BranchNotAllowedError struct {
	Pipeline string
	Branch   string
}

func (e BranchNotAllowedError) Error() string {
	return fmt.Sprintf("branch %q is not allowed for pipeline %q", e.Branch, e.Pipeline)
}
