package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/basui01/reelscope/types"
)

// Enqueuer hands a queued job off to the worker pool. It is satisfied
// by AsynqEnqueuer in production and by a fake in tests.
type Enqueuer interface {
	Enqueue(ctx context.Context, j *types.Job) error
}

// Manager owns job lifecycle transitions and the idempotence law from
// spec.md §4.7: calling analyze again for a video_id already in a
// terminal completed state returns the existing result unchanged; for
// a video_id still queued or running it returns the existing job id
// without starting a second run; for a video_id that failed it is
// free to restart.
//
// The race between two concurrent analyze calls racing to read-then-
// write the job table is closed with a singleflight.Group keyed by
// video_id, so only one goroutine ever performs the read-decide-write
// sequence for a given video at a time.
type Manager struct {
	store    Store
	enqueuer Enqueuer
	logger   *zap.Logger
	group    singleflight.Group
}

// NewManager constructs a Manager.
func NewManager(store Store, enqueuer Enqueuer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    store,
		enqueuer: enqueuer,
		logger:   logger.With(zap.String("component", "job_manager")),
	}
}

// Analyze submits videoID for analysis, or returns the existing job
// per the idempotence law above.
func (m *Manager) Analyze(ctx context.Context, videoID, source string, ablations types.Ablations) (*types.Job, error) {
	v, err, _ := m.group.Do(videoID, func() (any, error) {
		existing, found, err := m.store.Get(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("job manager: lookup existing job: %w", err)
		}
		if found {
			switch existing.State {
			case types.JobCompleted:
				m.logger.Info("analyze idempotent hit: returning completed job",
					zap.String("video_id", videoID))
				return existing, nil
			case types.JobQueued, types.JobRunning:
				m.logger.Info("analyze idempotent hit: job already in flight",
					zap.String("video_id", videoID), zap.String("state", string(existing.State)))
				return existing, nil
			case types.JobFailed:
				m.logger.Info("analyze restarting previously failed job",
					zap.String("video_id", videoID))
			}
		}

		j := &types.Job{
			JobID:     uuid.NewString(),
			VideoID:   videoID,
			Source:    source,
			Ablations: ablations,
			State:     types.JobQueued,
			CreatedAt: time.Now(),
		}
		if err := m.store.Save(ctx, j); err != nil {
			return nil, fmt.Errorf("job manager: save new job: %w", err)
		}
		if err := m.enqueuer.Enqueue(ctx, j); err != nil {
			j.State = types.JobFailed
			j.Message = "enqueue failed: " + err.Error()
			_ = m.store.Save(ctx, j)
			return nil, fmt.Errorf("job manager: enqueue: %w", err)
		}
		return j, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Job).Clone(), nil
}

// Status returns the current job record for videoID.
func (m *Manager) Status(ctx context.Context, videoID string) (*types.Job, bool, error) {
	j, found, err := m.store.Get(ctx, videoID)
	if err != nil || !found {
		return nil, found, err
	}
	return j.Clone(), true, nil
}

// MarkRunning transitions a job to running with 0% progress.
func (m *Manager) MarkRunning(ctx context.Context, videoID string) error {
	return m.mutate(ctx, videoID, func(j *types.Job) {
		j.State = types.JobRunning
		j.Progress = 0
		j.Message = ""
	})
}

// UpdateProgress records incremental progress (0..100) for a running job.
func (m *Manager) UpdateProgress(ctx context.Context, videoID string, progress int, message string) error {
	return m.mutate(ctx, videoID, func(j *types.Job) {
		j.Progress = progress
		j.Message = message
	})
}

// MarkCompleted transitions a job to completed, 100% progress.
func (m *Manager) MarkCompleted(ctx context.Context, videoID string) error {
	return m.mutate(ctx, videoID, func(j *types.Job) {
		now := time.Now()
		j.State = types.JobCompleted
		j.Progress = 100
		j.Message = ""
		j.FinishedAt = &now
	})
}

// MarkFailed transitions a job to failed with the given message.
func (m *Manager) MarkFailed(ctx context.Context, videoID, message string) error {
	return m.mutate(ctx, videoID, func(j *types.Job) {
		now := time.Now()
		j.State = types.JobFailed
		j.Message = message
		j.FinishedAt = &now
	})
}

func (m *Manager) mutate(ctx context.Context, videoID string, fn func(j *types.Job)) error {
	j, found, err := m.store.Get(ctx, videoID)
	if err != nil {
		return fmt.Errorf("job manager: lookup for mutate: %w", err)
	}
	if !found {
		return fmt.Errorf("job manager: no job for video_id %q", videoID)
	}
	fn(j)
	return m.store.Save(ctx, j)
}
