package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cnap-oss/gridion/internal/artifact"
	"github.com/cnap-oss/gridion/internal/common"
	"github.com/cnap-oss/gridion/internal/controller"
	"github.com/cnap-oss/gridion/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func buildRunCommands(c *cli) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run 생성 및 이력 조회 명령어",
		Long:  "프로세스 안에서 Run을 실행하거나 저장된 Run 이력을 조회합니다.",
	}

	// run create
	var campaignType string
	runCreateCmd := &cobra.Command{
		Use:   "create <brief>",
		Short: "새로운 Run 실행",
		Long:  "브리프로 Run을 시작하고 종료될 때까지 에이전트별 진행 상황을 출력합니다.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(c.logger, args[0], campaignType)
		},
	}
	runCreateCmd.Flags().StringVarP(&campaignType, "campaign", "c", "", "캠페인 유형 (product-launch, brand-story, testimonial)")

	// run list
	var limit int
	var statuses []string
	runListCmd := &cobra.Command{
		Use:   "list",
		Short: "Run 목록 조회",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(c.logger, limit, statuses)
		},
	}
	runListCmd.Flags().IntVarP(&limit, "limit", "n", 20, "최대 출력 개수")
	runListCmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "상태 필터 (여러 개 가능)")

	// run view
	runViewCmd := &cobra.Command{
		Use:   "view <run-id>",
		Short: "Run 상세 정보 조회",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(c.logger, args[0])
		},
	}

	// run delete
	var keepVideos bool
	runDeleteCmd := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Run 이력 삭제",
		Long:  "저장된 Run 이력과 (기본적으로) 영상 파일을 삭제합니다.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(c.logger, args[0], keepVideos)
		},
	}
	runDeleteCmd.Flags().BoolVar(&keepVideos, "keep-videos", false, "영상 파일은 남겨둠")

	runCmd.AddCommand(runCreateCmd, runListCmd, runViewCmd, runDeleteCmd)
	return runCmd
}

func runCreate(logger *zap.Logger, brief, campaignType string) error {
	cfg := common.GetConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("설정 검증 실패: %w", err)
	}

	repo, cleanup, err := initStorage(logger)
	if err != nil {
		return fmt.Errorf("저장소 초기화 실패: %w", err)
	}
	defer cleanup()

	ctrl, _, _, err := newController(logger, cfg, repo)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout())
		defer cancel()
		_ = ctrl.Stop(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID, err := ctrl.CreateRun(ctx, brief, campaignType)
	if err != nil {
		return fmt.Errorf("run 생성 실패: %w", err)
	}
	fmt.Printf("✓ Run '%s' 시작\n", runID)

	snap, err := watchRun(ctx, ctrl, runID, 500*time.Millisecond)
	if err != nil {
		return err
	}

	fmt.Println()
	printSnapshot(snap)
	if snap.Status != controller.RunStatusComplete {
		return fmt.Errorf("run %s 실패", runID)
	}
	return nil
}

// watchRun은 스냅샷이 바뀔 때마다 진행 상황을 출력하고 종료 스냅샷을 반환합니다.
// 인터럽트가 들어오면 Run을 취소하고 실패 스냅샷까지 기다립니다.
func watchRun(ctx context.Context, ctrl *controller.Controller, runID string, interval time.Duration) (*controller.RunSnapshot, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := make(map[string]string)
	lastStatus := ""
	canceled := false
	for {
		snap, err := ctrl.GetRun(runID)
		if err != nil {
			return nil, err
		}
		if snap.Status != lastStatus {
			fmt.Printf("  [run] %s\n", snap.Status)
			lastStatus = snap.Status
		}
		for _, a := range snap.Agents {
			if seen[a.Role] != a.Status {
				fmt.Printf("  [%s] %s\n", a.Role, a.Status)
				seen[a.Role] = a.Status
			}
		}
		if snap.Terminal() {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			if !canceled {
				fmt.Println("⚠ 인터럽트: Run을 취소합니다...")
				_ = ctrl.CancelRun(runID)
				canceled = true
			}
			<-ticker.C
		case <-ticker.C:
		}
	}
}

func printSnapshot(snap *controller.RunSnapshot) {
	fmt.Printf("=== Run 정보: %s ===\n\n", snap.ID)
	fmt.Printf("상태:        %s\n", snap.Status)
	if snap.Error != nil {
		fmt.Printf("오류:        %s\n", *snap.Error)
	}
	for _, a := range snap.Agents {
		fmt.Printf("\n[%s] %s\n", strings.ToUpper(a.Role), a.Status)
		if a.Prompt != nil {
			fmt.Printf("  프롬프트: %s\n", truncateString(*a.Prompt, 120))
		}
		if a.VideoPath != nil {
			fmt.Printf("  영상:     %s\n", *a.VideoPath)
		}
	}
}

func runList(logger *zap.Logger, limit int, statuses []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	repo, cleanup, err := initStorage(logger)
	if err != nil {
		return fmt.Errorf("저장소 초기화 실패: %w", err)
	}
	defer cleanup()

	runs, err := repo.ListRuns(ctx, limit, statuses...)
	if err != nil {
		return fmt.Errorf("run 목록 조회 실패: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("기록된 Run이 없습니다.")
		return nil
	}

	// 테이블 형식 출력
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN ID\tSTATUS\tCAMPAIGN\tBRIEF\tCREATED")
	_, _ = fmt.Fprintln(w, "------\t------\t--------\t-----\t-------")

	for _, run := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.RunID,
			run.Status,
			run.CampaignType,
			truncateString(run.Brief, 40),
			run.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()

	return nil
}

func runView(logger *zap.Logger, runID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	repo, cleanup, err := initStorage(logger)
	if err != nil {
		return fmt.Errorf("저장소 초기화 실패: %w", err)
	}
	defer cleanup()

	run, err := repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("run '%s'을(를) 찾을 수 없습니다", runID)
		}
		return fmt.Errorf("run 조회 실패: %w", err)
	}
	agents, err := repo.ListRunAgents(ctx, runID)
	if err != nil {
		return fmt.Errorf("에이전트 조회 실패: %w", err)
	}

	fmt.Printf("=== Run 정보: %s ===\n\n", run.RunID)
	fmt.Printf("상태:        %s\n", run.Status)
	fmt.Printf("캠페인:      %s\n", run.CampaignType)
	fmt.Printf("브리프:      %s\n", run.Brief)
	if run.Error != "" {
		fmt.Printf("오류:        %s\n", run.Error)
	}
	fmt.Printf("생성일:      %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("수정일:      %s\n", run.UpdatedAt.Format("2006-01-02 15:04:05"))

	for _, a := range agents {
		printAgentRecord(a)
	}
	return nil
}

func runDelete(logger *zap.Logger, runID string, keepVideos bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	repo, cleanup, err := initStorage(logger)
	if err != nil {
		return fmt.Errorf("저장소 초기화 실패: %w", err)
	}
	defer cleanup()

	if _, err := repo.GetRun(ctx, runID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("run '%s'을(를) 찾을 수 없습니다", runID)
		}
		return fmt.Errorf("run 조회 실패: %w", err)
	}
	if err := repo.DeleteRun(ctx, runID); err != nil {
		return fmt.Errorf("run 삭제 실패: %w", err)
	}

	if !keepVideos {
		store := artifact.NewStore(common.GetVideosDir(), logger.Named("artifact"))
		if err := store.RemoveRun(runID); err != nil {
			return fmt.Errorf("영상 삭제 실패: %w", err)
		}
	}

	fmt.Printf("✓ Run '%s' 삭제 완료\n", runID)
	return nil
}

func printAgentRecord(a storage.RunAgent) {
	fmt.Printf("\n[%s] %s\n", strings.ToUpper(a.Role), a.Status)
	if a.Prompt != "" {
		fmt.Printf("  프롬프트: %s\n", truncateString(a.Prompt, 120))
	}
	if a.JobID != "" {
		fmt.Printf("  Job ID:   %s\n", a.JobID)
	}
	if a.VideoPath != "" {
		fmt.Printf("  영상:     %s (%d bytes, blake3 %s)\n", a.VideoPath, a.SizeBytes, a.Digest)
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
