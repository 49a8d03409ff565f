package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// ControllerHandler는 Run 스냅샷을 폴링해 Discord 응답 임베드를 갱신합니다.
type ControllerHandler struct {
	logger    *zap.Logger
	session   Session
	runs      RunService
	publicURL string
	interval  time.Duration
}

// NewControllerHandler는 새로운 ControllerHandler를 생성합니다.
func NewControllerHandler(logger *zap.Logger, session Session, runs RunService, publicURL string, interval time.Duration) *ControllerHandler {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &ControllerHandler{
		logger:    logger.With(zap.String("handler", "controller")),
		session:   session,
		runs:      runs,
		publicURL: strings.TrimRight(publicURL, "/"),
		interval:  interval,
	}
}

// Watch edits the interaction response whenever the Run's snapshot changes,
// and returns once the Run is terminal, gone, or ctx is done.
func (h *ControllerHandler) Watch(ctx context.Context, interaction *discordgo.Interaction, runID string) {
	logger := h.logger.With(zap.String("run_id", runID))
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last string
	for {
		snap, err := h.runs.GetRun(runID)
		if err != nil {
			// 보관 기간이 지나 메모리에서 사라진 경우
			logger.Warn("Run disappeared while watching", zap.Error(err))
			return
		}

		if key := snapshotKey(snap); key != last {
			embeds := []*discordgo.MessageEmbed{RunEmbed(snap, h.publicURL)}
			if _, err := h.session.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
				logger.Error("Failed to update run embed", zap.Error(err))
			} else {
				last = key
			}
		}

		if snap.Terminal() {
			logger.Info("Run watch finished", zap.String("status", snap.Status))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
