package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cnap-oss/gridion/internal/api"
	"github.com/cnap-oss/gridion/internal/artifact"
	"github.com/cnap-oss/gridion/internal/common"
	"github.com/cnap-oss/gridion/internal/connector"
	"github.com/cnap-oss/gridion/internal/controller"
	"github.com/cnap-oss/gridion/internal/relay"
	"github.com/cnap-oss/gridion/internal/storage"
	"github.com/cnap-oss/gridion/internal/textgen"
	"github.com/cnap-oss/gridion/internal/video"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// cli는 명령어들이 공유하는 상태입니다.
type cli struct {
	configPath string
	logger     *zap.Logger
}

func main() {
	c := &cli{logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:     "gridion",
		Short:   "Gridion - three-director video generation",
		Long:    `Gridion expands an ad brief into three directorial prompts and renders one video per director.`,
		Version: fmt.Sprintf("%s (built at %s)", Version, BuildTime),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", "", "설정 파일 경로 (기본값: $GRIDION_DIR/config.yaml)")

	// serve 명령어
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the controller, HTTP API and Discord bot",
		Long:  `Start the orchestration controller and HTTP API. The Discord bot starts too when a token is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(c.logger)
		},
	}

	// health 명령어
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check application health status",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("OK")
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(buildRunCommands(c))
	rootCmd.AddCommand(buildChatCommand(c))

	err := rootCmd.Execute()
	_ = c.logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// init은 설정을 읽고 logger를 초기화합니다.
func (c *cli) init() error {
	if err := common.InitConfig(c.configPath); err != nil {
		return fmt.Errorf("설정 로드 실패: %w", err)
	}
	logger, err := common.NewLogger("")
	if err != nil {
		return fmt.Errorf("logger 초기화 실패: %w", err)
	}
	c.logger = logger
	return nil
}

// service는 serve가 함께 띄우고 내리는 서버입니다.
type service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type namedService struct {
	name string
	svc  service
}

// runServe는 controller, API 서버, (설정 시) Discord 봇을 시작합니다.
func runServe(logger *zap.Logger) error {
	logger.Info("Starting Gridion servers",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	cfg := common.GetConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("설정 검증 실패: %w", err)
	}

	repo, cleanup, err := initStorage(logger)
	if err != nil {
		logger.Error("Failed to initialize storage", zap.Error(err))
		return err
	}
	defer cleanup()

	// 이전 프로세스에서 끝나지 못한 Run은 되살릴 수 없음
	if n, err := repo.MarkInterruptedRuns(context.Background(), "interrupted by restart"); err != nil {
		logger.Warn("Failed to mark interrupted runs", zap.Error(err))
	} else if n > 0 {
		logger.Info("Marked interrupted runs as failed", zap.Int64("count", n))
	}

	ctrl, gen, store, err := newController(logger, cfg, repo)
	if err != nil {
		return err
	}
	rl := relay.New(gen, logger.Named("relay"))

	services := []namedService{
		{name: "controller", svc: ctrl},
		{name: "api", svc: api.NewServer(logger.Named("api"), cfg.App.ListenAddr, ctrl, rl, store)},
	}
	if cfg.Discord.Token != "" {
		services = append(services, namedService{
			name: "connector",
			svc:  connector.NewConnector(logger, cfg.Discord.Token, cfg.Discord.PublicURL, ctrl, rl),
		})
	} else {
		logger.Info("Discord token not set, bot disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown을 위한 signal 처리
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, len(services))
	var wg sync.WaitGroup
	for _, s := range services {
		wg.Add(1)
		go func(s namedService) {
			defer wg.Done()
			if err := s.svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("%s error: %w", s.name, err)
			}
		}(s)
	}

	// 종료 대기
	var runErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		logger.Error("Server error", zap.Error(runErr))
	}
	cancel()

	// Graceful shutdown: 요청 수신을 먼저 멈추고 마지막에 Run들을 취소
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout())
	defer shutdownCancel()

	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].svc.Stop(shutdownCtx); err != nil {
			logger.Error("Shutdown error", zap.String("service", services[i].name), zap.Error(err))
		}
	}
	wg.Wait()

	if runErr != nil {
		return runErr
	}
	logger.Info("Servers stopped gracefully")
	return nil
}

func initStorage(logger *zap.Logger) (*storage.Repository, func(), error) {
	cfg, err := storage.ConfigFromEnv()
	if err != nil {
		return nil, func() {}, err
	}

	db, err := storage.Open(cfg)
	if err != nil {
		return nil, func() {}, err
	}

	if err := storage.AutoMigrate(db); err != nil {
		_ = storage.Close(db)
		return nil, func() {}, err
	}

	repo, err := storage.NewRepository(db)
	if err != nil {
		_ = storage.Close(db)
		return nil, func() {}, err
	}

	cleanup := func() {
		if err := storage.Close(db); err != nil {
			logger.Warn("Failed to close storage", zap.Error(err))
		}
	}

	return repo, cleanup, nil
}

// newController는 설정에 맞춰 텍스트 생성기, 비디오 클라이언트, 영상 저장소를 묶은 Controller를 만듭니다.
func newController(logger *zap.Logger, cfg *common.Config, repo *storage.Repository) (*controller.Controller, textgen.Generator, *artifact.Store, error) {
	gen, err := textgen.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("텍스트 생성기 초기화 실패: %w", err)
	}

	videoClient := video.NewClient(cfg.Video.BaseURL, cfg.APIKeys.Video,
		video.WithLogger(logger.Named("video")),
		video.WithRateLimit(cfg.Video.RequestsPerSecond),
	)
	store := artifact.NewStore(common.GetVideosDir(), logger.Named("artifact"))

	ctrl := controller.NewController(logger.Named("controller"), gen, videoClient, store,
		controller.WithConfig(controller.Config{
			PollInterval:    cfg.Video.PollInterval,
			MaxPollDuration: cfg.Video.MaxPollDuration,
			RunRetention:    cfg.Orchestrator.RunRetention,
			CleanupInterval: cfg.Orchestrator.CleanupInterval,
		}),
		controller.WithRecorder(controller.NewRepositoryRecorder(repo)),
	)
	return ctrl, gen, store, nil
}

// shutdownTimeout returns the configured graceful shutdown budget.
func shutdownTimeout() time.Duration {
	if d := common.GetConfig().Orchestrator.ShutdownTimeout; d > 0 {
		return d
	}
	return 30 * time.Second
}
