package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cnap-oss/gridion/internal/video"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// 최종 영상 작업 상태
const (
	FinalStatusPending    = "pending"
	FinalStatusGenerating = "generating"
	FinalStatusComplete   = "complete"
	FinalStatusFailed     = "failed"
)

// RoleFinal names the single video rendered from a combined prompt. It is
// not one of Roles.
const RoleFinal Role = "final"

// FinalJob is a single-video job started from a combined prompt.
type FinalJob struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	VideoPath *string   `json:"videoPath"`
	Error     *string   `json:"error"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Terminal reports whether the job reached complete or failed.
func (j *FinalJob) Terminal() bool {
	return j.Status == FinalStatusComplete || j.Status == FinalStatusFailed
}

// finalJobs는 최종 영상 작업 테이블입니다. Run 테이블과는 별개입니다.
type finalJobs struct {
	mu   sync.RWMutex
	jobs map[string]FinalJob
}

func newFinalJobs() *finalJobs {
	return &finalJobs{jobs: make(map[string]FinalJob)}
}

func (s *finalJobs) get(id string) (FinalJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

func (s *finalJobs) put(job FinalJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *finalJobs) update(id string, now time.Time, fn func(*FinalJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Terminal() {
		return
	}
	fn(&job)
	job.UpdatedAt = now
	s.jobs[id] = job
}

func (s *finalJobs) evictFinishedBefore(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, job := range s.jobs {
		if job.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// StartFinalVideo registers a final-video job for prompt and renders it in
// the background. It returns the job ID immediately.
func (c *Controller) StartFinalVideo(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(norm.NFC.String(prompt))
	if prompt == "" {
		return "", ErrEmptyFinalPrompt
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return "", ErrStopped
	}

	now := c.now()
	id := newFinalJobID()
	c.finals.put(FinalJob{ID: id, Status: FinalStatusPending, CreatedAt: now, UpdatedAt: now})
	c.logger.Info("Final video job created", zap.String("job_id", id))

	c.wg.Add(1)
	go c.executeFinal(c.baseCtx, id, prompt)

	return id, nil
}

// GetFinalVideo returns a copy of the job's current state.
func (c *Controller) GetFinalVideo(id string) (*FinalJob, error) {
	job, ok := c.finals.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFinalJobNotFound, id)
	}
	return &job, nil
}

func (c *Controller) executeFinal(ctx context.Context, id, prompt string) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Final video job panicked", zap.String("job_id", id), zap.Any("panic", r))
			c.failFinal(id, fmt.Errorf("%w: %v", ErrRunPanicked, r))
		}
	}()

	path, err := c.renderFinal(ctx, id, prompt)
	if err != nil {
		c.failFinal(id, err)
		return
	}

	c.finals.update(id, c.now(), func(j *FinalJob) {
		j.Status = FinalStatusComplete
		j.VideoPath = &path
	})
	c.logger.Info("Final video job complete", zap.String("job_id", id), zap.String("video_path", path))
}

// renderFinal은 제출, 폴링, 다운로드를 에이전트와 같은 경로로 수행합니다.
func (c *Controller) renderFinal(ctx context.Context, id, prompt string) (_ string, err error) {
	ctx, span := c.tracer.Start(ctx, "final",
		trace.WithAttributes(attribute.String("final.id", id)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := c.logger.With(zap.String("job_id", id), zap.String("role", string(RoleFinal)))

	c.finals.update(id, c.now(), func(j *FinalJob) {
		j.Status = FinalStatusGenerating
	})

	job, err := c.video.Submit(ctx, &video.SimulateRequest{Script: video.NewScript(prompt)})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", newAgentError(OpSubmit, RoleFinal, ErrSubmitFailed, err)
	}
	logger.Info("Final job started, polling", zap.String("remote_job_id", job.JobID))

	status, err := c.poll(ctx, logger, RoleFinal, job.JobID)
	if err != nil {
		return "", err
	}

	saved, err := c.download(ctx, logger, finalArtifactDir(id), RoleFinal, status)
	if err != nil {
		return "", err
	}
	return saved[0].PublicPath, nil
}

func (c *Controller) failFinal(id string, err error) {
	msg := failureMessage(err)
	c.finals.update(id, c.now(), func(j *FinalJob) {
		j.Status = FinalStatusFailed
		j.Error = &msg
	})
	c.logger.Error("Final video job failed", zap.String("job_id", id), zap.Error(err))
}

// finalArtifactDir은 최종 영상이 저장되는 artifact 디렉터리 이름입니다.
func finalArtifactDir(id string) string {
	return "final_" + id
}

func newFinalJobID() string {
	return uuid.NewString()[:8]
}
