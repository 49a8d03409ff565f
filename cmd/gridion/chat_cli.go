package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cnap-oss/gridion/internal/extractor"
	"github.com/cnap-oss/gridion/internal/relay"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func buildChatCommand(c *cli) *cobra.Command {
	var campaignType, serverURL string
	chatCmd := &cobra.Command{
		Use:   "chat <brief>",
		Short: "세 감독의 토론 보기",
		Long:  "실행 중인 서버의 /api/chat에 연결해 감독들의 토론을 천천히 출력합니다.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(c.logger, serverURL, args[0], campaignType)
		},
	}
	chatCmd.Flags().StringVarP(&campaignType, "campaign", "c", "", "캠페인 유형")
	chatCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Gridion 서버 주소")
	return chatCmd
}

func runChat(logger *zap.Logger, serverURL, brief, campaignType string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := relay.NewConsumer(relay.WithConsumerLogger(logger.Named("chat")))
	res, err := consumer.Chat(ctx, serverURL, relay.ChatRequest{Prompt: brief, CampaignType: campaignType}, func(ev extractor.Event) {
		fmt.Printf("%-14s %s\n", "["+strings.ToUpper(ev.Agent)+"]", ev.Text)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("채팅 실패: %w", err)
	}

	if !res.Done {
		fmt.Println("⚠ 토론이 완료 표시 없이 끝났습니다.")
	}
	return nil
}
