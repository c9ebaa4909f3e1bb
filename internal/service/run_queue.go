package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/slipway-ci/slipway/internal"
	"github.com/slipway-ci/slipway/internal/security"
	"github.com/slipway-ci/slipway/internal/store"
	"github.com/slipway-ci/slipway/internal/util"
)

// ImageBuilder turns an image spec file into a release image and
// returns the pinned references for both phases. SaveImage exports a
// built image to a tar archive for shipping.
type ImageBuilder interface {
	BuildFromSpec(
		ctx context.Context,
		specPath string,
		outputCh chan<- string,
	) (builderRef, releaseRef string, err error)
	SaveImage(ctx context.Context, ref, destPath string) error
}

// RunOutput is one output line tagged with the run that produced it,
// so stream clients can follow a single run.
type RunOutput struct {
	RunID int64  `json:"run_id"`
	Line  string `json:"line"`
}

type RunQueueConfig struct {
	Runs            store.RunStore
	ImageBuilds     store.ImageBuildStore
	Runner          CommandRunner
	Locks           *DeployLock
	Builder         ImageBuilder
	Policy          LockPolicy
	MaxRuns         int64
	StageTimeout    time.Duration
	LockTimeout     time.Duration
	WorkspaceDir    string
	TestDatabaseURL string
	DeployToken     security.Secret
}

func NewRunQueue(def *Definition, cfg RunQueueConfig) *RunQueue {
	return &RunQueue{
		def:              def,
		cfg:              cfg,
		OutputSSEClients: NewSSEClientMap[RunOutput](),
		StatusSSEClients: NewSSEClientMap[store.Run](),
		queue:            make(chan *store.Run, cfg.MaxRuns),
		done:             make(chan struct{}),
		cancelRunMap:     NewCancelMap[int64](),
	}
}

// RunQueue executes one pipeline's runs in arrival order. A run walks
// test, then the optional image build, then deploy; the first stage
// without a clean verdict ends the run and nothing behind it executes.
type RunQueue struct {
	def *Definition
	cfg RunQueueConfig

	OutputSSEClients *SSEClientMap[RunOutput]
	StatusSSEClients *SSEClientMap[store.Run]

	queue        chan *store.Run
	done         chan struct{}
	cancelRunMap *CancelMap[int64]

	outputCh chan string
	statusCh chan store.Run
	mu       sync.Mutex
}

func (rq *RunQueue) Definition() *Definition {
	return rq.def
}

func (rq *RunQueue) CancelRun(runID int64) bool {
	return rq.cancelRunMap.Call(runID)
}

func (rq *RunQueue) Enqueue(r *store.Run) error {
	select {
	case rq.queue <- r:
		return nil
	default:
		return NewErrRunQueueFull()
	}
}

func (rq *RunQueue) Run() {
	for {
		select {
		case run := <-rq.queue:
			rq.outputCh = make(chan string)
			rq.statusCh = make(chan store.Run)

			ctx, cancel := context.WithCancel(context.Background())
			rq.cancelRunMap.AddCancel(run.RunID, cancel)

			go rq.handleOutput(run.RunID)
			go rq.handleStatus()

			if err := rq.processRun(ctx, run); err != nil {
				rq.finishRun(run, err)
			}

			close(rq.outputCh)
			close(rq.statusCh)
			rq.cancelRunMap.RemoveCancel(run.RunID)
			cancel()
		case <-rq.done:
			close(rq.queue)
			return
		}
	}
}

func (rq *RunQueue) Shutdown() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	select {
	case <-rq.done:
	default:
		close(rq.done)
	}
}

func (rq *RunQueue) handleOutput(runID int64) {
	for out := range rq.outputCh {
		if err := rq.cfg.Runs.AppendRunOutput(context.Background(), runID, out); err != nil {
			log.Error("appending run output", "run_id", runID, "err", err)
		}
		rq.OutputSSEClients.SendToClients(RunOutput{RunID: runID, Line: out})
	}
}

func (rq *RunQueue) handleStatus() {
	for r := range rq.statusCh {
		rq.StatusSSEClients.SendToClients(r)
	}
}

const passBanner = `
=============================================
PASS || Run passed: tests green, deploy done.
=============================================
`

const failBanner = `
=============================================
FAIL || Run failed.
=============================================
`

const cancelBanner = `
=============================================
CANCELLED || Run did not complete.
=============================================
`

// finishRun maps the error that ended the run onto a final status and
// exit code, persists them and tells every status listener.
func (rq *RunQueue) finishRun(run *store.Run, err error) {
	status := store.StatusFailed
	exitCode := int64(internal.ExitConfig)

	var cancelErr RunCancelError
	var supersededErr SupersededError
	var testErr TestStageError
	var deployErr DeployStageError
	var buildErr BuildStageError
	var lockErr LockTimeoutError

	switch {
	case errors.As(err, &cancelErr):
		status = store.StatusCancelled
	case errors.As(err, &supersededErr):
		status = store.StatusCancelled
		exitCode = int64(internal.ExitLockTimeout)
	case errors.As(err, &testErr):
		exitCode = int64(internal.ExitTestFailed)
	case errors.As(err, &deployErr):
		exitCode = int64(internal.ExitDeployFailed)
	case errors.As(err, &buildErr):
		exitCode = int64(internal.ExitBuildFailed)
	case errors.As(err, &lockErr):
		exitCode = int64(internal.ExitLockTimeout)
	}

	endedOn := time.Now().UTC()
	if dbErr := rq.cfg.Runs.UpdateRunEndedOn(
		context.Background(), run.RunID, status, &exitCode, &endedOn,
	); dbErr != nil {
		log.Error("updating run after failure", "run_id", run.RunID, "err", errors.Join(err, dbErr))
	}
	log.Error(
		"run finished with error",
		"run_id", run.RunID, "pipeline", run.Pipeline, "exit_code", exitCode, "err", err,
	)

	if r, dbErr := rq.cfg.Runs.ReadRunByID(context.Background(), run.RunID); dbErr != nil {
		log.Error("reading run after failure", "run_id", run.RunID, "err", dbErr)
	} else {
		rq.statusCh <- *r
	}

	if status == store.StatusCancelled {
		rq.outputCh <- cancelBanner
	} else {
		rq.outputCh <- failBanner
	}
}

func (rq *RunQueue) processRun(ctx context.Context, run *store.Run) error {
	r, err := rq.cfg.Runs.ReadRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err reading run by id\n"
		return err
	}
	if r.Status == store.StatusCancelled {
		return RunCancelError{Message: "run cancelled while queued"}
	}

	startedOn := time.Now().UTC()
	if err := rq.cfg.Runs.UpdateRunStartedOn(
		context.Background(), run.RunID, store.StatusRunning, &startedOn,
	); err != nil {
		rq.outputCh <- "err updating run started on\n"
		return err
	}

	r, err = rq.cfg.Runs.ReadRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err reading run by id\n"
		return err
	}
	run = r
	rq.statusCh <- *r

	workdir := rq.cfg.WorkspaceDir
	if workdir == "" {
		workdir = "."
	}

	if err := rq.runTestStage(ctx, run, workdir); err != nil {
		return err
	}

	releaseRef, err := rq.runBuildPhase(ctx, run)
	if err != nil {
		return err
	}

	if err := rq.runDeployStage(ctx, run, workdir, releaseRef); err != nil {
		return err
	}

	rq.outputCh <- passBanner

	exitCode := int64(internal.ExitOK)
	endedOn := time.Now().UTC()
	if err := rq.cfg.Runs.UpdateRunEndedOn(
		context.Background(), run.RunID, store.StatusPassed, &exitCode, &endedOn,
	); err != nil {
		rq.outputCh <- "err updating run ended on\n"
		return err
	}

	r, err = rq.cfg.Runs.ReadRunByID(context.Background(), run.RunID)
	if err != nil {
		rq.outputCh <- "err reading run by id\n"
		return err
	}
	rq.statusCh <- *r

	return nil
}

// runTestStage is the gate: every later phase requires its verdict to
// be a clean pass.
func (rq *RunQueue) runTestStage(ctx context.Context, run *store.Run, workdir string) error {
	if err := ValidateDatabaseURL(rq.cfg.TestDatabaseURL); err != nil {
		rq.recordStage(run.RunID, internal.TestStage, store.StageError, 0, err.Error(), nil, nil)
		return err
	}

	env := make([]string, 0, 1)
	if rq.cfg.TestDatabaseURL != "" {
		env = append(env, "DATABASE_URL="+rq.cfg.TestDatabaseURL)
	}

	code, err := rq.executeStage(
		ctx, run, internal.TestStage, rq.def.Test.Steps, rq.cfg.Runner, workdir, env,
	)
	if err != nil {
		var cancelErr RunCancelError
		if errors.As(err, &cancelErr) {
			return err
		}
		return TestStageError{Reason: err.Error()}
	}
	if code != 0 {
		return TestStageError{ExitCode: code}
	}
	return nil
}

// runBuildPhase assembles the release image when the pipeline declares
// one. The deploy stage receives the pinned reference, never a floating
// tag.
func (rq *RunQueue) runBuildPhase(ctx context.Context, run *store.Run) (string, error) {
	if rq.def.Image == nil {
		return "", nil
	}
	if rq.cfg.Builder == nil {
		err := ConfigError{Message: "pipeline declares an image but no builder is configured"}
		rq.recordStage(run.RunID, internal.BuildStage, store.StageError, 0, err.Error(), nil, nil)
		return "", err
	}

	rq.outputCh <- fmt.Sprintf("Executing pipeline stage '%s'\n", internal.BuildStage)
	startedOn := time.Now().UTC()
	builderRef, releaseRef, err := rq.cfg.Builder.BuildFromSpec(
		ctx, rq.def.Image.Spec, rq.outputCh,
	)
	endedOn := time.Now().UTC()
	if err != nil {
		rq.recordStage(
			run.RunID, internal.BuildStage, store.StageError, 0, err.Error(), &startedOn, &endedOn,
		)
		if ctx.Err() != nil {
			return "", RunCancelError{Message: "image build cancelled"}
		}
		return "", BuildStageError{Message: err.Error()}
	}
	rq.recordStage(run.RunID, internal.BuildStage, store.StageSuccess, 0, "", &startedOn, &endedOn)

	if rq.cfg.ImageBuilds != nil {
		if _, err := rq.cfg.ImageBuilds.CreateImageBuild(
			context.Background(), util.AsPtr(run.RunID), rq.def.Name, builderRef, releaseRef,
		); err != nil {
			log.Error("recording image build", "run_id", run.RunID, "err", err)
		}
	}

	rq.outputCh <- fmt.Sprintf("Built release image %s\n", releaseRef)
	return releaseRef, nil
}

func (rq *RunQueue) runDeployStage(
	ctx context.Context,
	run *store.Run,
	workdir, releaseRef string,
) error {
	if rq.cfg.DeployToken.IsZero() {
		err := ConfigError{Message: "deploy token is not configured"}
		rq.recordStage(run.RunID, internal.DeployStage, store.StageError, 0, err.Error(), nil, nil)
		return err
	}

	group := rq.def.Group()
	policy := rq.def.LockPolicy(rq.cfg.Policy)

	rq.outputCh <- fmt.Sprintf("Waiting for deploy slot in group '%s'\n", group)
	lockCtx, cancelLock := context.WithTimeout(ctx, rq.cfg.LockTimeout)
	release, err := rq.cfg.Locks.Acquire(lockCtx, group, policy)
	cancelLock()
	if err != nil {
		var supersededErr SupersededError
		switch {
		case errors.As(err, &supersededErr):
			rq.recordStage(
				run.RunID, internal.DeployStage, store.StageSkipped, 0, err.Error(), nil, nil,
			)
			return err
		case ctx.Err() != nil:
			message := "cancelled while waiting for deploy slot"
			rq.recordStage(run.RunID, internal.DeployStage, store.StageError, 0, message, nil, nil)
			return RunCancelError{Message: message}
		default:
			lockErr := LockTimeoutError{Group: group}
			rq.recordStage(
				run.RunID, internal.DeployStage, store.StageError, 0, lockErr.Error(), nil, nil,
			)
			return lockErr
		}
	}
	defer release()

	// Once a deploy starts it runs to its own verdict; cancellation
	// only applies up to this point.
	deployCtx := context.WithoutCancel(ctx)

	env := []string{"SLIPWAY_DEPLOY_TOKEN=" + rq.cfg.DeployToken.Reveal()}
	if releaseRef != "" {
		env = append(env, "RELEASE_IMAGE="+releaseRef)
	}

	runner := rq.cfg.Runner
	steps := rq.def.Deploy.Steps
	if remote := rq.def.Deploy.Remote; remote != nil {
		deployer := NewRemoteDeployer(remote)
		defer deployer.Close()

		if remote.Artifact != "" {
			rq.outputCh <- fmt.Sprintf(
				"Uploading artifact %s to %s\n", remote.Artifact, remote.Host,
			)
			if err := deployer.Upload(
				filepath.Join(workdir, remote.Artifact), remote.Dest,
			); err != nil {
				endedOn := time.Now().UTC()
				reason := "uploading artifact: " + err.Error()
				rq.recordStage(
					run.RunID, internal.DeployStage, store.StageError, 0, reason, nil, &endedOn,
				)
				return DeployStageError{Reason: reason}
			}
		}

		if remote.ShipImage && releaseRef != "" {
			loadStep, err := rq.shipReleaseImage(deployCtx, run, remote, deployer, releaseRef)
			if err != nil {
				endedOn := time.Now().UTC()
				rq.recordStage(
					run.RunID, internal.DeployStage, store.StageError, 0, err.Error(), nil, &endedOn,
				)
				return DeployStageError{Reason: err.Error()}
			}
			steps = append([]StepSpec{loadStep}, steps...)
		}
		runner = deployer
		// Remote steps run on the target host, where the daemon's
		// workspace path means nothing. They run in dest instead.
		workdir = remote.Dest
	}

	code, err := rq.executeStage(
		deployCtx, run, internal.DeployStage, steps, runner, workdir, env,
	)
	if err != nil {
		return DeployStageError{Reason: err.Error()}
	}
	if code != 0 {
		return DeployStageError{ExitCode: code}
	}
	return nil
}

// shipReleaseImage saves the release image to a tar archive, uploads it
// to the deploy host and returns the step that loads it there. The
// archive is removed locally once uploaded.
func (rq *RunQueue) shipReleaseImage(
	ctx context.Context,
	run *store.Run,
	remote *RemoteSpec,
	deployer *RemoteDeployer,
	releaseRef string,
) (StepSpec, error) {
	if rq.cfg.Builder == nil {
		return StepSpec{}, ConfigError{Message: "pipeline ships an image but no builder is configured"}
	}

	archive := fmt.Sprintf("slipway-release-%d.tar", run.RunID)
	localPath := filepath.Join(os.TempDir(), archive)
	defer os.Remove(localPath)

	rq.outputCh <- fmt.Sprintf("Saving release image to %s\n", archive)
	if err := rq.cfg.Builder.SaveImage(ctx, releaseRef, localPath); err != nil {
		return StepSpec{}, fmt.Errorf("saving release image: %w", err)
	}

	rq.outputCh <- fmt.Sprintf("Shipping release image to %s\n", remote.Host)
	if err := deployer.Upload(localPath, remote.Dest); err != nil {
		return StepSpec{}, fmt.Errorf("shipping release image: %w", err)
	}

	return StepSpec{
		Name:   "load release image",
		Script: fmt.Sprintf("%s load --input %s", remote.LoadEngine(), path.Join(remote.Dest, archive)),
	}, nil
}

// executeStage runs the stage's steps in order and records one result
// row. The returned int is the exit code of the first failing step, 0
// when every step passed; err covers cancellation and steps that never
// produced a verdict.
func (rq *RunQueue) executeStage(
	ctx context.Context,
	run *store.Run,
	stage string,
	steps []StepSpec,
	runner CommandRunner,
	workdir string,
	env []string,
) (int, error) {
	rq.outputCh <- fmt.Sprintf("Executing pipeline stage '%s'\n", stage)
	startedOn := time.Now().UTC()

	for _, step := range steps {
		name := step.Name
		if name == "" {
			name = step.Script
		}
		rq.outputCh <- fmt.Sprintf("  |  Executing step '%s'\n", name)

		code, err := runner.Run(ctx, CommandSpec{
			Script:  step.Script,
			Dir:     workdir,
			Env:     env,
			Timeout: step.Timeout(rq.cfg.StageTimeout),
		}, rq.outputCh)
		if err != nil {
			endedOn := time.Now().UTC()
			rq.recordStage(
				run.RunID, stage, store.StageError, 0, err.Error(), &startedOn, &endedOn,
			)
			return 0, err
		}
		if code != 0 {
			endedOn := time.Now().UTC()
			rq.recordStage(run.RunID, stage, store.StageFailure, code, "", &startedOn, &endedOn)
			return code, nil
		}
	}

	endedOn := time.Now().UTC()
	rq.recordStage(run.RunID, stage, store.StageSuccess, 0, "", &startedOn, &endedOn)
	return 0, nil
}

func (rq *RunQueue) recordStage(
	runID int64,
	name string,
	status store.StageStatus,
	exitCode int,
	reason string,
	startedOn, endedOn *time.Time,
) {
	if _, err := rq.cfg.Runs.CreateStageResult(context.Background(), &store.StageResult{
		RunID:     runID,
		Name:      name,
		Status:    status,
		ExitCode:  int64(exitCode),
		Reason:    reason,
		StartedOn: startedOn,
		EndedOn:   endedOn,
	}); err != nil {
		log.Error("recording stage result", "run_id", runID, "stage", name, "err", err)
	}
}
