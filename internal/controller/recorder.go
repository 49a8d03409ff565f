package controller

import (
	"context"
	"time"

	"github.com/cnap-oss/gridion/internal/storage"
	"go.uber.org/zap"
)

// Recorder mirrors Run state to durable history. Implementations are called
// from the Run's own goroutine after every mutation.
type Recorder interface {
	Record(ctx context.Context, run *Run) error
}

// RepositoryRecorder는 storage.Repository에 Run 이력을 기록합니다.
type RepositoryRecorder struct {
	repo *storage.Repository
}

// NewRepositoryRecorder는 새 RepositoryRecorder를 생성합니다.
func NewRepositoryRecorder(repo *storage.Repository) *RepositoryRecorder {
	return &RepositoryRecorder{repo: repo}
}

// Record implements Recorder.
func (r *RepositoryRecorder) Record(ctx context.Context, run *Run) error {
	rec := &storage.Run{
		RunID:        run.ID,
		Brief:        run.Brief,
		CampaignType: run.CampaignType,
		Status:       run.Status,
		Error:        run.Error,
	}
	agents := make([]storage.RunAgent, 0, len(run.Agents))
	for i, a := range run.Agents {
		agents = append(agents, storage.RunAgent{
			RunID:     run.ID,
			Role:      string(a.Role),
			Position:  i,
			Status:    a.Status,
			Prompt:    a.Prompt,
			JobID:     a.JobID,
			VideoPath: a.VideoPath,
			Digest:    a.Digest,
			SizeBytes: a.SizeBytes,
		})
	}
	return r.repo.SaveRunSnapshot(ctx, rec, agents)
}

const recordTimeout = 5 * time.Second

// record는 이력 기록을 시도합니다. 실패는 로그만 남기고 Run 진행에는 영향을 주지 않습니다.
func (c *Controller) record(run *Run) {
	if c.recorder == nil {
		return
	}
	// Run context가 취소된 뒤에도 마지막 상태는 기록해야 하므로 별도 context를 씁니다.
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := c.recorder.Record(ctx, run); err != nil {
		c.logger.Warn("Failed to record run history",
			zap.String("run_id", run.ID),
			zap.String("status", run.Status),
			zap.Error(err),
		)
	}
}
