package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cnap-oss/gridion/internal/artifact"
	"github.com/cnap-oss/gridion/internal/video"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// VideoService is the subset of the video-synthesis client the pipeline uses.
type VideoService interface {
	Submit(ctx context.Context, req *video.SimulateRequest) (*video.Job, error)
	GetStatus(ctx context.Context, jobID string) (*video.JobStatus, error)
	GetRecording(ctx context.Context, streamID string) (*video.Recording, error)
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// orchestrate는 확장 후 에이전트 세 개를 순서대로 처리합니다.
// 에이전트 단위 실패는 여기서 흡수되고, 반환되는 에러는 Run 전체 실패입니다.
func (c *Controller) orchestrate(ctx context.Context, e *runEntry, run *Run) error {
	ctx, span := c.tracer.Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", run.ID),
			attribute.String("run.campaign", run.CampaignType),
		))
	defer span.End()

	c.logger.Info("Generating prompt variations", zap.String("run_id", run.ID))

	prompts, err := c.expander.Expand(ctx, run.Brief, run.CampaignType)
	if err != nil {
		span.SetStatus(codes.Error, "expansion failed")
		return err
	}
	if err := run.bindPrompts(prompts); err != nil {
		return err
	}
	c.commit(e, run)

	c.logger.Info("Prompts ready, processing agents sequentially",
		zap.String("run_id", run.ID),
		zap.Int("agents", len(run.Agents)),
	)

	for _, a := range run.Agents {
		if err := run.setStatus(ProcessingStatus(a.Role)); err != nil {
			return err
		}
		c.commit(e, run)

		err := c.runAgent(ctx, e, run, a)
		switch {
		case err == nil:
			c.metrics.RecordAgent(true)
		case IsAgentScoped(err):
			c.logger.Warn("Agent failed",
				zap.String("run_id", run.ID),
				zap.String("role", string(a.Role)),
				zap.Error(err),
			)
			if err := run.setAgentStatus(a, AgentStatusFailed); err != nil {
				return err
			}
			c.commit(e, run)
			c.metrics.RecordAgent(false)
		default:
			return err
		}
	}

	if err := run.setStatus(RunStatusComplete); err != nil {
		return err
	}
	c.commit(e, run)
	return nil
}

// runAgent drives one agent through submit, poll and download. Failures
// scoped to the agent come back as *AgentError; anything else (cancellation,
// state machine violations) aborts the Run.
func (c *Controller) runAgent(ctx context.Context, e *runEntry, run *Run, a *Agent) (err error) {
	ctx, span := c.tracer.Start(ctx, "agent."+string(a.Role),
		trace.WithAttributes(attribute.String("agent.role", string(a.Role))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := c.logger.With(zap.String("run_id", run.ID), zap.String("role", string(a.Role)))

	// 1. Submit
	if err := c.advance(e, run, a, AgentStatusSubmitting); err != nil {
		return err
	}
	logger.Info("Submitting job", zap.String("prompt", a.Prompt))

	job, err := c.video.Submit(ctx, &video.SimulateRequest{
		Script:   video.NewScript(a.Prompt),
		Portrait: false,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return newAgentError(OpSubmit, a.Role, ErrSubmitFailed, err)
	}
	a.JobID = job.JobID
	logger.Info("Job started", zap.String("job_id", job.JobID))

	// 2. Poll
	if err := c.advance(e, run, a, AgentStatusProcessing); err != nil {
		return err
	}
	status, err := c.poll(ctx, logger, a.Role, job.JobID)
	if err != nil {
		return err
	}

	// 3. Download
	if err := c.advance(e, run, a, AgentStatusDownloading); err != nil {
		return err
	}
	saved, err := c.download(ctx, logger, run.ID, a.Role, status)
	if err != nil {
		return err
	}

	first := saved[0]
	a.VideoPath = first.PublicPath
	a.Digest = first.Digest
	for _, s := range saved {
		a.SizeBytes += s.Size
	}
	if err := c.advance(e, run, a, AgentStatusDone); err != nil {
		return err
	}
	logger.Info("Agent done", zap.String("video_path", a.VideoPath))
	return nil
}

// advance는 에이전트 상태를 바꾸고 스냅샷을 게시합니다.
func (c *Controller) advance(e *runEntry, run *Run, a *Agent, to string) error {
	if err := run.setAgentStatus(a, to); err != nil {
		return err
	}
	c.commit(e, run)
	return nil
}

// notFoundGrace는 제출 직후 작업이 아직 보이지 않는 404를 일시적 에러로 보는 폴링 횟수입니다.
const notFoundGrace = 3

// poll waits one interval, asks for the job status and repeats until the
// job is terminal. Transient errors are logged and retried indefinitely, as
// is a 404 within the first notFoundGrace polls.
func (c *Controller) poll(ctx context.Context, logger *zap.Logger, role Role, jobID string) (*video.JobStatus, error) {
	var deadline <-chan time.Time
	if c.cfg.MaxPollDuration > 0 {
		t := time.NewTimer(c.cfg.MaxPollDuration)
		defer t.Stop()
		deadline = t.C
	}

	timer := time.NewTimer(c.cfg.PollInterval)
	defer timer.Stop()

	for polls := 1; ; polls++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, newAgentError(OpPoll, role, ErrRemoteJobFailed,
				fmt.Errorf("job %s not terminal after %s", jobID, c.cfg.MaxPollDuration))
		case <-timer.C:
		}

		status, err := c.video.GetStatus(ctx, jobID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !video.IsTransient(err) && !(video.IsNotFound(err) && polls <= notFoundGrace) {
				return nil, newAgentError(OpPoll, role, ErrRemoteJobFailed, err)
			}
			c.metrics.RecordPollError()
			logger.Warn("Poll error, retrying",
				zap.String("job_id", jobID),
				zap.Error(fmt.Errorf("%w: %w", ErrTransientPoll, err)),
			)
			timer.Reset(c.cfg.PollInterval)
			continue
		}

		logger.Debug("Job status", zap.String("job_id", jobID), zap.String("status", status.Status))

		switch status.Status {
		case video.JobStatusCompleted:
			return status, nil
		case video.JobStatusFailed:
			return nil, newAgentError(OpPoll, role, ErrRemoteJobFailed,
				fmt.Errorf("job %s failed: %s", jobID, status.ErrorMessage))
		case video.JobStatusCancelled:
			return nil, newAgentError(OpPoll, role, ErrRemoteJobFailed,
				fmt.Errorf("job %s cancelled", jobID))
		}
		timer.Reset(c.cfg.PollInterval)
	}
}

// download saves every output stream of a completed job. All of them must
// succeed; the first one is the agent's video.
func (c *Controller) download(ctx context.Context, logger *zap.Logger, runID string, role Role, status *video.JobStatus) ([]*artifact.Artifact, error) {
	if len(status.Streams) == 0 {
		return nil, newAgentError(OpDownload, role, ErrDownloadFailed,
			fmt.Errorf("job %s completed without output streams", status.JobID))
	}

	saved := make([]*artifact.Artifact, 0, len(status.Streams))
	for i, stream := range status.Streams {
		a, err := c.downloadOne(ctx, runID, artifact.FileName(string(role), i), stream.StreamID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, newAgentError(OpDownload, role, ErrDownloadFailed, err)
		}
		c.metrics.RecordDownload(a.Size)
		logger.Info("Recording saved",
			zap.String("stream_id", stream.StreamID),
			zap.String("path", a.Path),
			zap.Int64("size", a.Size),
		)
		saved = append(saved, a)
	}
	return saved, nil
}

func (c *Controller) downloadOne(ctx context.Context, runID, file, streamID string) (*artifact.Artifact, error) {
	rec, err := c.video.GetRecording(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("recording %s: %w", streamID, err)
	}

	body, err := c.video.Fetch(ctx, rec.VideoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", streamID, err)
	}
	defer body.Close()

	return c.artifacts.Save(ctx, runID, file, body)
}

// failureMessage는 Run 단위 실패를 사람이 읽을 수 있는 메시지로 바꿉니다.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrRunCanceled.Error()
	default:
		return err.Error()
	}
}
