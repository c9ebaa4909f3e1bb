package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/georgysavva/scany/v2/dbscan"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/go-co-op/gocron/v2"
	"github.com/slipway-ci/slipway/internal/store"
)

// TriggerEvent is one delivery from the outside world: a push or tag
// event naming the pipeline, the branch and the commit it points at.
type TriggerEvent struct {
	Pipeline  string `json:"pipeline"`
	Branch    string `json:"branch"`
	CommitSha string `json:"commit_sha"`
}

// Key identifies the event for retrigger detection. The same
// pipeline, branch and commit delivered twice is the same event.
func (e TriggerEvent) Key() string {
	return fmt.Sprintf("%s:%s:%s", e.Pipeline, e.Branch, e.CommitSha)
}

type PipelineServicer interface {
	TriggerRun(context.Context, TriggerEvent) (*store.Run, bool, error)
	GetRunByID(context.Context, int64) (*store.Run, error)
	GetRunStageResults(context.Context, int64) ([]store.StageResult, error)
	ListLatestPipelineRuns(context.Context, string, int64) ([]store.Run, error)
	ListPipelineRunsPaginated(context.Context, string, int64, int64) ([]store.Run, error)
	GetPipelineRunCount(context.Context, string) (int64, error)
	ListImageBuilds(context.Context, string, int64) ([]store.ImageBuild, error)
	GetLatestImageBuild(context.Context, string) (*store.ImageBuild, error)
	ListDefinitions() []*Definition
	GetRunQueue(string) (*RunQueue, bool)
	CancelRun(context.Context, int64) error
	EnqueueRun(*store.Run) error
}

func NewPipelineService(
	definitions map[string]*Definition,
	queueConfig RunQueueConfig,
	scheduler gocron.Scheduler,
) *PipelineService {
	return &PipelineService{
		definitions: definitions,
		runStore:    queueConfig.Runs,
		queueConfig: queueConfig,
		scheduler:   scheduler,
		queues:      make(map[string]*RunQueue),
	}
}

type PipelineService struct {
	definitions map[string]*Definition
	runStore    store.RunStore
	queueConfig RunQueueConfig
	scheduler   gocron.Scheduler

	mu     sync.Mutex
	queues map[string]*RunQueue
}

func (s *PipelineService) InitializeRunQueues() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, def := range s.definitions {
		s.queues[name] = NewRunQueue(def, s.queueConfig)
	}
}

func (s *PipelineService) StartRunQueues() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queues {
		go s.queues[i].Run()
	}
}

func (s *PipelineService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queues {
		s.queues[i].Shutdown()
	}
}

func (s *PipelineService) GetRunQueue(pipeline string) (*RunQueue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[pipeline]
	return q, ok
}

func (s *PipelineService) ListDefinitions() []*Definition {
	defs := make([]*Definition, 0, len(s.definitions))
	for _, def := range s.definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// TriggerRun turns a trigger event into a queued run. The bool reports
// whether a new run was created: a retrigger of an event whose run
// already passed returns that prior run untouched, so delivery retries
// never deploy twice.
func (s *PipelineService) TriggerRun(
	ctx context.Context,
	event TriggerEvent,
) (*store.Run, bool, error) {
	def, ok := s.definitions[event.Pipeline]
	if !ok {
		return nil, false, UnknownPipelineError{Pipeline: event.Pipeline}
	}
	if !def.BranchAllowed(event.Branch) {
		return nil, false, BranchNotAllowedError{Pipeline: event.Pipeline, Branch: event.Branch}
	}

	prior, err := s.runStore.ReadLatestRunByEventKey(ctx, event.Key())
	if err != nil && !sqlscan.NotFound(err) {
		return nil, false, err
	}
	if err == nil && prior.Status == store.StatusPassed {
		return prior, false, nil
	}

	r, err := s.runStore.CreateRun(
		ctx, def.Name, event.Key(), event.Branch, event.CommitSha, def.Group(),
	)
	if err != nil {
		return nil, false, err
	}
	if err := s.EnqueueRun(r); err != nil {
		if delErr := s.runStore.DeleteRun(ctx, r.RunID); delErr != nil {
			log.Error("deleting run after enqueue failure", "run_id", r.RunID, "err", delErr)
		}
		return nil, false, err
	}
	return r, true, nil
}

func (s *PipelineService) EnqueueRun(r *store.Run) error {
	q, ok := s.GetRunQueue(r.Pipeline)
	if !ok {
		return UnknownPipelineError{Pipeline: r.Pipeline}
	}
	return q.Enqueue(r)
}

// CancelRun stops a run. An executing run has its context cancelled; a
// run still waiting in the queue is flipped to cancelled so the worker
// skips it. A deploy already underway is never interrupted.
func (s *PipelineService) CancelRun(ctx context.Context, runID int64) error {
	r, err := s.runStore.ReadRunByID(ctx, runID)
	if err != nil {
		return err
	}
	q, ok := s.GetRunQueue(r.Pipeline)
	if !ok {
		return UnknownPipelineError{Pipeline: r.Pipeline}
	}
	if q.CancelRun(runID) {
		return nil
	}
	if r.Status == store.StatusQueued {
		return s.runStore.UpdateRunStatus(ctx, runID, store.StatusCancelled)
	}
	return nil
}

func (s *PipelineService) GetRunByID(ctx context.Context, runID int64) (*store.Run, error) {
	return s.runStore.ReadRunByID(ctx, runID)
}

func (s *PipelineService) GetRunStageResults(
	ctx context.Context,
	runID int64,
) ([]store.StageResult, error) {
	return s.runStore.ListStageResults(ctx, runID)
}

func (s *PipelineService) ListLatestPipelineRuns(
	ctx context.Context,
	pipeline string,
	limit int64,
) ([]store.Run, error) {
	return s.runStore.ListLatestPipelineRuns(ctx, pipeline, limit)
}

func (s *PipelineService) ListPipelineRunsPaginated(
	ctx context.Context,
	pipeline string,
	limit, offset int64,
) ([]store.Run, error) {
	return s.runStore.ListPipelineRunsPaginated(ctx, pipeline, limit, offset)
}

func (s *PipelineService) GetPipelineRunCount(
	ctx context.Context,
	pipeline string,
) (int64, error) {
	return s.runStore.CountPipelineRuns(ctx, pipeline)
}

// ListImageBuilds returns a pipeline's most recent image builds, newest
// first.
func (s *PipelineService) ListImageBuilds(
	ctx context.Context,
	pipeline string,
	limit int64,
) ([]store.ImageBuild, error) {
	if _, ok := s.definitions[pipeline]; !ok {
		return nil, UnknownPipelineError{Pipeline: pipeline}
	}
	if s.queueConfig.ImageBuilds == nil {
		return []store.ImageBuild{}, nil
	}
	return s.queueConfig.ImageBuilds.ListImageBuilds(ctx, pipeline, limit)
}

func (s *PipelineService) GetLatestImageBuild(
	ctx context.Context,
	pipeline string,
) (*store.ImageBuild, error) {
	if _, ok := s.definitions[pipeline]; !ok {
		return nil, UnknownPipelineError{Pipeline: pipeline}
	}
	if s.queueConfig.ImageBuilds == nil {
		return nil, dbscan.ErrNotFound
	}
	return s.queueConfig.ImageBuilds.ReadLatestImageBuild(ctx, pipeline)
}

// SchedulePipelines registers a cron job for every pipeline that
// declares a schedule. Each firing gets a fresh event key, so scheduled
// runs are never deduplicated against each other.
func (s *PipelineService) SchedulePipelines() error {
	if s.scheduler == nil {
		return nil
	}
	for _, def := range s.definitions {
		if def.Schedule == nil {
			continue
		}
		if _, err := s.scheduler.NewJob(
			gocron.CronJob(def.Schedule.Cron, false),
			gocron.NewTask(func() {
				event := TriggerEvent{
					Pipeline:  def.Name,
					Branch:    def.Schedule.Branch,
					CommitSha: fmt.Sprintf("cron-%d", time.Now().Unix()),
				}
				if _, _, err := s.TriggerRun(context.Background(), event); err != nil {
					log.Error("triggering scheduled run", "pipeline", def.Name, "err", err)
				}
			}),
		); err != nil {
			return fmt.Errorf("scheduling pipeline %q: %w", def.Name, err)
		}
	}
	return nil
}

// ScheduleRetentionPruning deletes finished runs older than the
// retention window once a day at midnight.
func (s *PipelineService) ScheduleRetentionPruning(retentionDays int64) error {
	if s.scheduler == nil {
		return nil
	}
	_, err := s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 0, 0))),
		gocron.NewTask(func() {
			cutoff := time.Now().UTC().AddDate(0, 0, -int(retentionDays))
			pruned, err := s.runStore.PruneRunsBefore(context.Background(), cutoff)
			if err != nil {
				log.Error("pruning finished runs", "err", err)
				return
			}
			if pruned > 0 {
				log.Info("pruned finished runs", "count", pruned)
			}
		}),
	)
	return err
}
