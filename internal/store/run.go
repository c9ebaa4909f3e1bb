package store

import (
	"context"
	"time"
)

type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCancelled RunStatus = "cancelled"
	StatusFailed    RunStatus = "failed"
	StatusPassed    RunStatus = "passed"
)

type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageFailure StageStatus = "failure"
	StageError   StageStatus = "error"
	StageSkipped StageStatus = "skipped"
)

type Run struct {
	RunID            int64      `param:"run_id" json:"run_id"`
	Pipeline         string     `json:"pipeline"`
	EventKey         string     `json:"event_key"`
	Branch           string     `json:"branch"`
	CommitSha        string     `json:"commit_sha"`
	Status           RunStatus  `json:"status"`
	ConcurrencyGroup string     `json:"concurrency_group"`
	ExitCode         *int64     `json:"exit_code"`
	Output           *string    `json:"-"`
	CreatedOn        time.Time  `json:"created_on"`
	StartedOn        *time.Time `json:"started_on"`
	EndedOn          *time.Time `json:"ended_on"`
}

// StageResult records the outcome of one stage of a run. Status
// distinguishes a command that ran and failed (failure, with the
// command's exit code) from a stage that never produced a verdict
// (error, with a reason).
type StageResult struct {
	StageResultID int64       `json:"stage_result_id"`
	RunID         int64       `json:"run_id"`
	Name          string      `json:"name"`
	Status        StageStatus `json:"status"`
	ExitCode      int64       `json:"exit_code"`
	Reason        string      `json:"reason,omitempty"`
	StartedOn     *time.Time  `json:"started_on"`
	EndedOn       *time.Time  `json:"ended_on"`
}

type RunStore interface {
	CreateRun(
		ctx context.Context,
		pipeline, eventKey, branch, commitSha, concurrencyGroup string,
	) (*Run, error)
	ReadRunByID(context.Context, int64) (*Run, error)
	ReadLatestRunByEventKey(context.Context, string) (*Run, error)
	UpdateRunStartedOn(context.Context, int64, RunStatus, *time.Time) error
	UpdateRunEndedOn(context.Context, int64, RunStatus, *int64, *time.Time) error
	UpdateRunStatus(context.Context, int64, RunStatus) error
	AppendRunOutput(context.Context, int64, string) error
	DeleteRun(context.Context, int64) error
	CreateStageResult(context.Context, *StageResult) (*StageResult, error)
	ListStageResults(context.Context, int64) ([]StageResult, error)
	ListPipelineRuns(context.Context, string) ([]Run, error)
	ListLatestPipelineRuns(context.Context, string, int64) ([]Run, error)
	ListPipelineRunsPaginated(context.Context, string, int64, int64) ([]Run, error)
	CountPipelineRuns(context.Context, string) (int64, error)
	PruneRunsBefore(context.Context, time.Time) (int64, error)
}
