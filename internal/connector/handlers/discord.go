package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/cnap-oss/gridion/internal/controller"
	"github.com/cnap-oss/gridion/internal/relay"
	"go.uber.org/zap"
)

// Session은 핸들러가 사용하는 Discord REST 호출입니다. *discordgo.Session이 구현합니다.
type Session interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ThreadStart(channelID, name string, typ discordgo.ChannelType, archiveDuration int, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// RunService는 봇이 사용하는 Run 조작입니다.
type RunService interface {
	CreateRun(ctx context.Context, brief, campaignType string) (string, error)
	GetRun(runID string) (*controller.RunSnapshot, error)
	CancelRun(runID string) error
}

// DiscordHandler는 Discord 상호작용을 처리합니다.
type DiscordHandler struct {
	ctx               context.Context
	logger            *zap.Logger
	session           Session
	runs              RunService
	relay             *relay.Relay
	controllerHandler *ControllerHandler
	wg                sync.WaitGroup
}

// NewDiscordHandler는 새로운 DiscordHandler를 생성합니다.
// ctx는 핸들러가 띄우는 백그라운드 작업(Run 감시, 토론 중계)의 수명입니다.
func NewDiscordHandler(
	ctx context.Context,
	logger *zap.Logger,
	session Session,
	runs RunService,
	rl *relay.Relay,
	watcher *ControllerHandler,
) *DiscordHandler {
	return &DiscordHandler{
		ctx:               ctx,
		logger:            logger.With(zap.String("handler", "discord")),
		session:           session,
		runs:              runs,
		relay:             rl,
		controllerHandler: watcher,
	}
}

// RegisterHandlers는 Discord 세션에 이벤트 핸들러를 등록합니다.
func (h *DiscordHandler) RegisterHandlers(s *discordgo.Session) {
	s.AddHandler(h.readyHandler)
	s.AddHandler(h.interactionRouter)
}

// Wait blocks until every background watch and relay has returned.
func (h *DiscordHandler) Wait() {
	h.wg.Wait()
}

// readyHandler는 봇이 연결되면 전역 명령어를 등록합니다.
func (h *DiscordHandler) readyHandler(s *discordgo.Session, r *discordgo.Ready) {
	h.logger.Info("Bot is ready! Registering commands...", zap.String("username", r.User.Username))

	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, "", Commands()); err != nil {
		h.logger.Error("Could not register commands", zap.Error(err))
		return
	}
	h.logger.Info("Successfully registered commands.")
}

func (h *DiscordHandler) interactionRouter(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type == discordgo.InteractionApplicationCommand {
		h.handleSlashCommand(i)
	}
}

// startRun은 Run을 만들고 응답 임베드를 종료 상태까지 갱신합니다.
func (h *DiscordHandler) startRun(i *discordgo.InteractionCreate, brief, campaignType string) {
	// 3초 안에 응답해야 하므로 먼저 defer 응답을 보냅니다
	if err := h.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		h.logger.Error("Failed to defer generate response", zap.Error(err))
		return
	}

	runID, err := h.runs.CreateRun(h.ctx, brief, campaignType)
	if err != nil {
		h.logger.Error("Failed to create run", zap.Error(err))
		h.editContent(i, fmt.Sprintf("❌ Run 생성 실패: %s", userMessage(err)))
		return
	}

	h.logger.Info("Run started from Discord",
		zap.String("run_id", runID),
		zap.String("channel_id", i.ChannelID),
	)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.controllerHandler.Watch(h.ctx, i.Interaction, runID)
	}()
}

// showRun은 Run의 현재 스냅샷을 임베드로 보여줍니다.
func (h *DiscordHandler) showRun(i *discordgo.InteractionCreate, runID string) {
	snap, err := h.runs.GetRun(runID)
	if err != nil {
		h.respondEphemeral(i, fmt.Sprintf("오류: Run '**%s**'을(를) 찾을 수 없어요.", runID))
		return
	}
	err = h.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{RunEmbed(snap, h.controllerHandler.publicURL)}},
	})
	if err != nil {
		h.logger.Error("Failed to show run", zap.Error(err), zap.String("run_id", runID))
	}
}

// cancelRun은 진행 중인 Run을 취소합니다.
func (h *DiscordHandler) cancelRun(i *discordgo.InteractionCreate, runID string) {
	if err := h.runs.CancelRun(runID); err != nil {
		h.respondEphemeral(i, fmt.Sprintf("오류: Run '**%s**'을(를) 찾을 수 없어요.", runID))
		return
	}
	h.respondEphemeral(i, fmt.Sprintf("Run '**%s**' 취소를 요청했어요.", runID))
}

// startDebate는 토론 스레드를 열고 채팅 이벤트를 스레드로 중계합니다.
func (h *DiscordHandler) startDebate(i *discordgo.InteractionCreate, brief, campaignType string) {
	h.respondEphemeral(i, "토론 스레드를 생성 중...")

	thread, err := h.session.ThreadStart(i.ChannelID, threadName(brief), discordgo.ChannelTypeGuildPublicThread, 60)
	if err != nil {
		h.logger.Error("Failed to create thread", zap.Error(err))
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		w := newThreadWriter(h.session, thread.ID)
		err := h.relay.Stream(h.ctx, relay.ChatRequest{Prompt: brief, CampaignType: campaignType}, w)
		if err != nil && h.ctx.Err() == nil {
			h.logger.Warn("Debate relay ended with error", zap.String("thread_id", thread.ID), zap.Error(err))
			if _, sendErr := h.session.ChannelMessageSend(thread.ID, "⚠️ 토론이 중간에 끊겼어요."); sendErr != nil {
				h.logger.Error("Failed to send relay error", zap.Error(sendErr))
			}
		}
	}()
}

// respondEphemeral은 사용자에게만 보이는 임시 메시지를 전송합니다.
func (h *DiscordHandler) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	err := h.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		h.logger.Error("Failed to send ephemeral message", zap.Error(err))
	}
}

func (h *DiscordHandler) editContent(i *discordgo.InteractionCreate, content string) {
	if _, err := h.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		h.logger.Error("Failed to edit interaction response", zap.Error(err))
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, controller.ErrEmptyBrief):
		return "브리프를 입력해주세요."
	case errors.Is(err, controller.ErrStopped):
		return "서버가 종료 중이에요."
	default:
		return err.Error()
	}
}

func threadName(brief string) string {
	return "[debate] " + truncate(brief, 80)
}
