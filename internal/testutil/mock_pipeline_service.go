package testutil

import (
	"context"

	"github.com/slipway-ci/slipway/internal/service"
	"github.com/slipway-ci/slipway/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockPipelineService struct {
	mock.Mock
}

func (m *MockPipelineService) TriggerRun(
	ctx context.Context,
	event service.TriggerEvent,
) (*store.Run, bool, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*store.Run), args.Bool(1), args.Error(2)
}

func (m *MockPipelineService) GetRunByID(ctx context.Context, runID int64) (*store.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *MockPipelineService) GetRunStageResults(
	ctx context.Context,
	runID int64,
) ([]store.StageResult, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.StageResult), args.Error(1)
}

func (m *MockPipelineService) ListLatestPipelineRuns(
	ctx context.Context,
	pipeline string,
	limit int64,
) ([]store.Run, error) {
	args := m.Called(ctx, pipeline, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Run), args.Error(1)
}

func (m *MockPipelineService) ListPipelineRunsPaginated(
	ctx context.Context,
	pipeline string,
	limit, offset int64,
) ([]store.Run, error) {
	args := m.Called(ctx, pipeline, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Run), args.Error(1)
}

func (m *MockPipelineService) GetPipelineRunCount(
	ctx context.Context,
	pipeline string,
) (int64, error) {
	args := m.Called(ctx, pipeline)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPipelineService) ListImageBuilds(
	ctx context.Context,
	pipeline string,
	limit int64,
) ([]store.ImageBuild, error) {
	args := m.Called(ctx, pipeline, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.ImageBuild), args.Error(1)
}

func (m *MockPipelineService) GetLatestImageBuild(
	ctx context.Context,
	pipeline string,
) (*store.ImageBuild, error) {
	args := m.Called(ctx, pipeline)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.ImageBuild), args.Error(1)
}

func (m *MockPipelineService) ListDefinitions() []*service.Definition {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*service.Definition)
}

func (m *MockPipelineService) GetRunQueue(pipeline string) (*service.RunQueue, bool) {
	args := m.Called(pipeline)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*service.RunQueue), args.Bool(1)
}

func (m *MockPipelineService) CancelRun(ctx context.Context, runID int64) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

func (m *MockPipelineService) EnqueueRun(r *store.Run) error {
	args := m.Called(r)
	return args.Error(0)
}
