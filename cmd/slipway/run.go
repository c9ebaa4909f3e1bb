package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/slipway-ci/slipway/internal"
	"github.com/slipway-ci/slipway/internal/security"
	"github.com/slipway-ci/slipway/internal/service"
	"github.com/slipway-ci/slipway/internal/settings"
	"github.com/slipway-ci/slipway/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	runPipeline string
	runBranch   string
	runCommit   string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Trigger a pipeline run and wait for its verdict",
		Long: `Trigger a run on a pipeline and stream its output until the run
finishes. The exit code is the run's verdict: 0 passed, 2 the test
stage failed, 3 the deploy stage failed, 4 the image build failed,
5 the deploy lock timed out.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}
)

func init() {
	runCmd.Flags().StringVarP(&runPipeline, "pipeline", "p", "", "pipeline to run")
	runCmd.Flags().StringVarP(&runBranch, "branch", "b", "main", "branch the run is for")
	runCmd.Flags().StringVar(&runCommit, "commit", "", "commit sha recorded on the run")
	runCmd.MarkFlagRequired("pipeline")
}

func runRun(cmd *cobra.Command, args []string) error {
	rdb, rwdb := openDatabases()
	defer rdb.Close()
	defer rwdb.Close()

	defs, err := service.LoadDefinitions(settings.Settings.PipelineDir)
	if err != nil {
		return &ExitError{Code: internal.ExitConfig, Err: err}
	}
	def, ok := defs[runPipeline]
	if !ok {
		return &ExitError{
			Code: internal.ExitConfig,
			Err:  service.UnknownPipelineError{Pipeline: runPipeline},
		}
	}

	promptDeployToken()

	scheduler := service.NewScheduler()
	defer scheduler.Shutdown()

	svc := service.NewPipelineService(
		map[string]*service.Definition{def.Name: def},
		queueConfig(rdb, rwdb),
		scheduler,
	)
	svc.InitializeRunQueues()
	svc.StartRunQueues()
	defer svc.Shutdown()

	rq, _ := svc.GetRunQueue(def.Name)
	uid := uuid.NewString()
	rq.OutputSSEClients.AddClient(uid)
	defer rq.OutputSSEClients.RemoveClient(uid)
	outputCh := rq.OutputSSEClients.GetClient(uid)

	commit := runCommit
	if commit == "" {
		commit = fmt.Sprintf("cli-%d", time.Now().Unix())
	}
	run, created, err := svc.TriggerRun(cmd.Context(), service.TriggerEvent{
		Pipeline:  runPipeline,
		Branch:    runBranch,
		CommitSha: commit,
	})
	if err != nil {
		return &ExitError{Code: internal.ExitConfig, Err: err}
	}
	if !created {
		fmt.Printf("run %d for this event already passed, nothing to do\n", run.RunID)
		return nil
	}
	fmt.Printf("run %d queued on pipeline %s (branch %s)\n", run.RunID, run.Pipeline, run.Branch)

	return waitForRun(cmd.Context(), svc, run.RunID, outputCh)
}

// waitForRun streams output until the run reaches a final status. The
// stream drops lines rather than stall the run, so a store poll backs
// it up for the verdict itself.
func waitForRun(
	ctx context.Context,
	svc *service.PipelineService,
	runID int64,
	outputCh chan service.RunOutput,
) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	interrupt := ctx.Done()
	for {
		select {
		case out := <-outputCh:
			if out.RunID == runID {
				fmt.Print(out.Line)
			}
		case <-ticker.C:
			r, err := svc.GetRunByID(context.Background(), runID)
			if err != nil {
				return &ExitError{Code: internal.ExitConfig, Err: err}
			}
			if runFinished(r.Status) {
				return runVerdict(r)
			}
		case <-interrupt:
			interrupt = nil
			fmt.Printf("cancelling run %d\n", runID)
			if err := svc.CancelRun(context.Background(), runID); err != nil {
				return &ExitError{Code: internal.ExitConfig, Err: err}
			}
		}
	}
}

func runFinished(status store.RunStatus) bool {
	switch status {
	case store.StatusPassed, store.StatusFailed, store.StatusCancelled:
		return true
	}
	return false
}

func runVerdict(r *store.Run) error {
	if r.Status == store.StatusPassed {
		return nil
	}
	code := internal.ExitConfig
	if r.ExitCode != nil {
		code = int(*r.ExitCode)
	}
	return &ExitError{
		Code: code,
		Err:  fmt.Errorf("run %d finished %s", r.RunID, r.Status),
	}
}

// promptDeployToken asks for a token when none is configured and stdin
// is a terminal. The value is read without echo and kept as a Secret,
// so it never reaches logs or run output.
func promptDeployToken() {
	if !settings.Settings.DeployToken.IsZero() {
		return
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	fmt.Fprint(os.Stderr, "deploy token (blank to skip): ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil || len(b) == 0 {
		return
	}
	settings.Settings.DeployToken = security.Secret(b)
}
