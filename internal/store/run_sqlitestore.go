package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/slipway-ci/slipway/internal"
)

type RunSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewRunSQLiteStore(rdb, rwdb *sql.DB) *RunSQLiteStore {
	return &RunSQLiteStore{rdb, rwdb}
}

func (store *RunSQLiteStore) CreateRun(
	ctx context.Context,
	pipeline, eventKey, branch, commitSha, concurrencyGroup string,
) (*Run, error) {
	r := &Run{
		Pipeline:         pipeline,
		EventKey:         eventKey,
		Branch:           branch,
		CommitSha:        commitSha,
		ConcurrencyGroup: concurrencyGroup,
		Status:           StatusQueued,
	}
	query := `insert into runs (
		pipeline,
		event_key,
		branch,
		commit_sha,
		concurrency_group,
		status
	)
	values ($1, $2, $3, $4, $5, $6)
	returning run_id, created_on`
	if err := sqlscan.Get(
		ctx, store.rwdb, r, query,
		r.Pipeline, r.EventKey, r.Branch, r.CommitSha, r.ConcurrencyGroup, r.Status,
	); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RunSQLiteStore) ReadRunByID(ctx context.Context, id int64) (*Run, error) {
	r := &Run{RunID: id}
	query := "select * from runs where run_id = $1"
	if err := sqlscan.Get(ctx, store.rdb, r, query, r.RunID); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RunSQLiteStore) ReadLatestRunByEventKey(
	ctx context.Context,
	eventKey string,
) (*Run, error) {
	r := new(Run)
	query := `select * from runs
	where event_key = $1
	order by created_on desc, run_id desc
	limit 1`
	if err := sqlscan.Get(ctx, store.rdb, r, query, eventKey); err != nil {
		return nil, err
	}
	return r, nil
}

func (store *RunSQLiteStore) UpdateRunStartedOn(
	ctx context.Context,
	id int64,
	status RunStatus,
	startedOn *time.Time,
) error {
	query := `update runs
	set status = $1,
		started_on = $2
	where run_id = $3`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		status,
		startedOn.Format(internal.DBTimestampLayout),
		id,
	)
	return err
}

func (store *RunSQLiteStore) UpdateRunEndedOn(
	ctx context.Context,
	id int64,
	status RunStatus,
	exitCode *int64,
	endedOn *time.Time,
) error {
	query := `update runs
	set status = $1,
		exit_code = $2,
		ended_on = $3
	where run_id = $4`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		status,
		exitCode,
		endedOn.Format(internal.DBTimestampLayout),
		id,
	)
	return err
}

func (store *RunSQLiteStore) UpdateRunStatus(
	ctx context.Context,
	id int64,
	status RunStatus,
) error {
	query := `update runs set status = $1 where run_id = $2`
	_, err := store.rwdb.ExecContext(ctx, query, status, id)
	return err
}

func (store *RunSQLiteStore) AppendRunOutput(ctx context.Context, id int64, out string) error {
	tx, err := store.rwdb.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r := &Run{RunID: id}
	readQuery := `select * from runs where run_id = $1`
	err = sqlscan.Get(ctx, tx, r, readQuery, r.RunID)
	if err != nil {
		return err
	}

	var existingOutput string
	if r.Output != nil {
		existingOutput = *r.Output
	}
	updateQuery := `update runs
	set output = $1
	where run_id = $2`
	_, err = tx.ExecContext(ctx, updateQuery, existingOutput+out, r.RunID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (store *RunSQLiteStore) DeleteRun(ctx context.Context, id int64) error {
	query := "delete from runs where run_id = $1"
	_, err := store.rwdb.ExecContext(ctx, query, id)
	return err
}

func (store *RunSQLiteStore) CreateStageResult(
	ctx context.Context,
	sr *StageResult,
) (*StageResult, error) {
	var startedOn, endedOn any
	if sr.StartedOn != nil {
		startedOn = sr.StartedOn.Format(internal.DBTimestampLayout)
	}
	if sr.EndedOn != nil {
		endedOn = sr.EndedOn.Format(internal.DBTimestampLayout)
	}
	query := `insert into stage_results (
		run_id,
		name,
		status,
		exit_code,
		reason,
		started_on,
		ended_on
	)
	values ($1, $2, $3, $4, $5, $6, $7)
	returning stage_result_id`
	if err := sqlscan.Get(
		ctx, store.rwdb, sr, query,
		sr.RunID, sr.Name, sr.Status, sr.ExitCode, sr.Reason, startedOn, endedOn,
	); err != nil {
		return nil, err
	}
	return sr, nil
}

func (store *RunSQLiteStore) ListStageResults(
	ctx context.Context,
	runID int64,
) ([]StageResult, error) {
	query := `select * from stage_results
	where run_id = $1
	order by stage_result_id`
	results := make([]StageResult, 0)
	err := sqlscan.Select(ctx, store.rdb, &results, query, runID)
	return results, err
}

func (store *RunSQLiteStore) ListPipelineRuns(
	ctx context.Context,
	pipeline string,
) ([]Run, error) {
	query := `select * from runs
	where pipeline = $1`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query, pipeline)
	return runs, err
}

func (store *RunSQLiteStore) ListLatestPipelineRuns(
	ctx context.Context,
	pipeline string,
	limit int64,
) ([]Run, error) {
	query := `select * from runs
	where pipeline = $1
	order by created_on desc, run_id desc
	limit $2`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query, pipeline, limit)
	return runs, err
}

func (store *RunSQLiteStore) ListPipelineRunsPaginated(
	ctx context.Context,
	pipeline string,
	limit, offset int64,
) ([]Run, error) {
	query := `select * from runs
	where pipeline = $1
	order by created_on desc, run_id desc
	limit $2 offset $3`
	runs := make([]Run, 0)
	err := sqlscan.Select(ctx, store.rdb, &runs, query, pipeline, limit, offset)
	return runs, err
}

func (store *RunSQLiteStore) CountPipelineRuns(
	ctx context.Context,
	pipeline string,
) (int64, error) {
	var count int64
	query := `select count(*) from runs where pipeline = $1`
	err := sqlscan.Get(ctx, store.rdb, &count, query, pipeline)
	return count, err
}

// PruneRunsBefore deletes finished runs created before the cutoff. Runs
// still queued or running are never pruned regardless of age.
func (store *RunSQLiteStore) PruneRunsBefore(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	query := `delete from runs
	where created_on < $1
	and status in ($2, $3, $4)`
	res, err := store.rwdb.ExecContext(
		ctx, query,
		cutoff.Format(internal.DBTimestampLayout),
		StatusPassed, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
