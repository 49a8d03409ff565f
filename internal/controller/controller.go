// Package controller runs generation Runs: it expands a brief into three
// role prompts and drives one video job per role, strictly in order, while
// publishing snapshots that any number of readers may poll.
package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cnap-oss/gridion/internal/artifact"
	"github.com/cnap-oss/gridion/internal/campaign"
	"github.com/cnap-oss/gridion/internal/textgen"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const tracerName = "github.com/cnap-oss/gridion/internal/controller"

// Config는 오케스트레이션 설정입니다.
type Config struct {
	// 상태 폴링 주기
	PollInterval time.Duration
	// 0이면 원격 작업이 끝날 때까지 무기한 폴링
	MaxPollDuration time.Duration
	// 0이면 종료된 Run을 프로세스 수명 동안 보관
	RunRetention time.Duration
	// 보관 기간 검사 주기
	CleanupInterval time.Duration
}

// DefaultConfig는 기본 설정을 반환합니다.
func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		CleanupInterval: time.Minute,
	}
}

// Option은 Controller 옵션입니다.
type Option func(*Controller)

// WithConfig는 오케스트레이션 설정을 지정합니다.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.cfg = cfg
	}
}

// WithRecorder는 Run 이력 기록기를 지정합니다.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithMetrics는 메트릭 수집기를 지정합니다.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithTracer는 tracer를 지정합니다. 기본값은 전역 TracerProvider입니다.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = t
	}
}

// WithClock은 시간 소스를 바꿉니다. 테스트용.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller는 Run 생성과 백그라운드 오케스트레이션을 담당합니다.
type Controller struct {
	logger    *zap.Logger
	gen       textgen.Generator
	expander  *Expander
	video     VideoService
	artifacts *artifact.Store
	recorder  Recorder
	metrics   *Metrics
	tracer    trace.Tracer
	cfg       Config
	now       func() time.Time

	store  *RunStore
	finals *finalJobs

	// 모든 Run goroutine의 부모 context
	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	stopped    bool
}

// NewController는 새로운 Controller를 생성합니다.
func NewController(logger *zap.Logger, gen textgen.Generator, videoSvc VideoService, artifacts *artifact.Store, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		logger:     logger,
		gen:        gen,
		video:      videoSvc,
		artifacts:  artifacts,
		metrics:    &Metrics{},
		tracer:     otel.Tracer(tracerName),
		cfg:        DefaultConfig(),
		now:        time.Now,
		store:      NewRunStore(),
		finals:     newFinalJobs(),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.PollInterval <= 0 {
		c.cfg.PollInterval = DefaultConfig().PollInterval
	}
	c.expander = NewExpander(gen, logger.Named("expander"))
	return c
}

// Start runs the retention janitor until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.logger.Info("Starting controller",
		zap.Duration("poll_interval", c.cfg.PollInterval),
		zap.Duration("max_poll_duration", c.cfg.MaxPollDuration),
		zap.Duration("run_retention", c.cfg.RunRetention),
	)

	if c.cfg.RunRetention <= 0 {
		<-ctx.Done()
		c.logger.Info("Controller shutting down")
		return ctx.Err()
	}
	return c.cleanupLoop(ctx)
}

// Stop은 진행 중인 모든 Run을 취소하고 goroutine 종료를 기다립니다.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	n := c.store.cancelAll()
	c.cancelBase()
	c.logger.Info("Stopping controller", zap.Int("active_runs", n))

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Controller stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout exceeded: %w", ctx.Err())
	}
}

// CreateRun은 Run을 등록하고 백그라운드 오케스트레이션을 시작한 뒤 즉시 반환합니다.
func (c *Controller) CreateRun(ctx context.Context, brief, campaignType string) (string, error) {
	brief = strings.TrimSpace(norm.NFC.String(brief))
	if brief == "" {
		return "", ErrEmptyBrief
	}
	campaignType = campaign.Normalize(campaignType)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return "", ErrStopped
	}

	run := newRun(newRunID(), brief, campaignType, c.now())
	runCtx, cancel := context.WithCancel(c.baseCtx)
	e, err := c.store.create(run, cancel)
	if err != nil {
		cancel()
		return "", err
	}
	c.record(run)
	c.metrics.RecordRunStarted()

	c.logger.Info("Run created",
		zap.String("run_id", run.ID),
		zap.String("campaign_type", campaignType),
	)

	c.wg.Add(1)
	go c.execute(runCtx, e, run)

	return run.ID, nil
}

// GetRun은 Run의 최신 스냅샷을 반환합니다.
func (c *Controller) GetRun(runID string) (*RunSnapshot, error) {
	snap, ok := c.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return snap, nil
}

// ListRuns는 메모리에 있는 Run 스냅샷을 생성 순서로 반환합니다.
func (c *Controller) ListRuns() []*RunSnapshot {
	return c.store.List()
}

// CancelRun은 진행 중인 Run을 취소합니다. 이미 끝난 Run에는 영향이 없습니다.
func (c *Controller) CancelRun(runID string) error {
	e, ok := c.store.entry(runID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	c.logger.Info("Canceling run", zap.String("run_id", runID))
	e.cancel()
	return nil
}

// Metrics returns the controller's metrics collector.
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}

// execute는 Run 하나를 처리하는 goroutine 본체입니다.
func (c *Controller) execute(ctx context.Context, e *runEntry, run *Run) {
	start := c.now()
	defer c.wg.Done()
	defer e.cancel()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Run orchestration panicked",
				zap.String("run_id", run.ID),
				zap.Any("panic", r),
			)
			c.failRun(e, run, fmt.Errorf("%w: %v", ErrRunPanicked, r))
		}
		c.metrics.RecordRunFinished(run.Status, c.now().Sub(start))
	}()

	if err := c.orchestrate(ctx, e, run); err != nil {
		c.failRun(e, run, err)
		return
	}
	c.logger.Info("Run complete", zap.String("run_id", run.ID))
}

// failRun marks the Run failed. Agents already terminal keep their state,
// the agent in flight becomes failed and waiting agents stay waiting.
func (c *Controller) failRun(e *runEntry, run *Run, err error) {
	if IsRunTerminal(run.Status) {
		return
	}
	if a := run.inFlight(); a != nil {
		_ = run.setAgentStatus(a, AgentStatusFailed)
		c.metrics.RecordAgent(false)
	}
	run.Error = failureMessage(err)
	_ = run.setStatus(RunStatusFailed)
	c.commit(e, run)

	c.logger.Error("Run failed",
		zap.String("run_id", run.ID),
		zap.Error(err),
	)
}

// commit은 Run의 현재 상태를 이력에 기록하고 스냅샷으로 게시합니다.
// 기록이 먼저라서 terminal 스냅샷이 보이면 이력도 이미 terminal입니다.
func (c *Controller) commit(e *runEntry, run *Run) {
	run.UpdatedAt = c.now()
	c.record(run)
	e.publish(run.Snapshot())
}

func newRunID() string {
	return "run_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
