// Package connector runs the Discord bot front-end.
package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cnap-oss/gridion/internal/connector/handlers"
	"github.com/cnap-oss/gridion/internal/relay"
	"go.uber.org/zap"
)

// Connector는 Discord 봇 세션과 핸들러를 관리하는 중앙 구조체입니다.
type Connector struct {
	logger            *zap.Logger
	token             string
	publicURL         string
	pollInterval      time.Duration
	session           *discordgo.Session
	runs              handlers.RunService
	relay             *relay.Relay
	discordHandler    *handlers.DiscordHandler
	controllerHandler *handlers.ControllerHandler
}

// NewConnector는 새로운 connector를 생성합니다. publicURL은 영상 링크에 붙는 API 서버 주소입니다.
func NewConnector(logger *zap.Logger, token, publicURL string, runs handlers.RunService, rl *relay.Relay) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		logger:       logger.Named("connector"),
		token:        token,
		publicURL:    publicURL,
		pollInterval: 3 * time.Second,
		runs:         runs,
		relay:        rl,
	}
}

// Start는 Discord 봇을 시작하고 ctx가 끝날 때까지 블록합니다.
func (s *Connector) Start(ctx context.Context) error {
	s.logger.Info("Starting connector server (Discord Bot)")

	if s.token == "" {
		return fmt.Errorf("GRIDION_DISCORD_TOKEN environment variable not set")
	}

	dg, err := discordgo.New("Bot " + s.token)
	if err != nil {
		return fmt.Errorf("error creating Discord session: %w", err)
	}
	s.session = dg
	s.session.Identify.Intents = discordgo.IntentsGuilds

	// 핸들러 초기화
	s.controllerHandler = handlers.NewControllerHandler(s.logger, s.session, s.runs, s.publicURL, s.pollInterval)
	s.discordHandler = handlers.NewDiscordHandler(ctx, s.logger, s.session, s.runs, s.relay, s.controllerHandler)
	s.discordHandler.RegisterHandlers(s.session)

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	s.logger.Info("Bot is now running.")

	// 세션 종료는 Stop이 담당
	<-ctx.Done()
	s.logger.Info("Connector server shutting down")
	return ctx.Err()
}

// Stop은 진행 중인 스레드 중계와 Run 감시를 기다린 뒤 Discord 세션을 닫습니다.
func (s *Connector) Stop(ctx context.Context) error {
	s.logger.Info("Stopping connector server")
	if s.discordHandler != nil {
		done := make(chan struct{})
		go func() {
			s.discordHandler.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("Timed out waiting for Discord handlers", zap.Error(ctx.Err()))
		}
	}
	if s.session != nil {
		if err := s.session.Close(); err != nil {
			s.logger.Error("Error closing discord session", zap.Error(err))
			return err
		}
	}
	s.logger.Info("Connector server stopped")
	return nil
}
