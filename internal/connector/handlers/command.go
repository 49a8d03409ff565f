package handlers

import (
	"github.com/bwmarrin/discordgo"
	"github.com/cnap-oss/gridion/internal/campaign"
)

// Discord 명령어 및 옵션 이름을 정의합니다.
const (
	cmdGenerate  = "generate"
	cmdRun       = "run"
	cmdDebate    = "debate"
	subCmdView   = "view"
	subCmdCancel = "cancel"

	optBrief    = "brief"
	optCampaign = "campaign"
	optRunID    = "run_id"
)

// Commands는 봇이 등록하는 전역 애플리케이션 명령어 목록을 반환합니다.
func Commands() []*discordgo.ApplicationCommand {
	campaignChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(campaign.Types))
	for _, t := range campaign.Types {
		campaignChoices = append(campaignChoices, &discordgo.ApplicationCommandOptionChoice{Name: campaign.Label(t), Value: t})
	}

	briefOption := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: optBrief, Description: desc, Required: true}
	}
	campaignOption := &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: optCampaign, Description: "캠페인 유형", Choices: campaignChoices}
	runIDOption := []*discordgo.ApplicationCommandOption{{Type: discordgo.ApplicationCommandOptionString, Name: optRunID, Description: "Run ID", Required: true}}

	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdGenerate,
			Description: "세 감독의 영상 생성을 시작합니다.",
			Options:     []*discordgo.ApplicationCommandOption{briefOption("광고 브리프"), campaignOption},
		},
		{
			Name:        cmdRun,
			Description: "Run 조회 및 취소 명령어",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: subCmdView, Description: "Run의 현재 상태를 봅니다.", Options: runIDOption},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: subCmdCancel, Description: "진행 중인 Run을 취소합니다.", Options: runIDOption},
			},
		},
		{
			Name:        cmdDebate,
			Description: "세 감독의 토론을 스레드에서 봅니다.",
			Options:     []*discordgo.ApplicationCommandOption{briefOption("토론할 브리프"), campaignOption},
		},
	}
}

// handleSlashCommand는 슬래시 명령어를 처리합니다.
func (h *DiscordHandler) handleSlashCommand(i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case cmdGenerate:
		opts := optionValues(data.Options)
		h.startRun(i, opts[optBrief], opts[optCampaign])
	case cmdDebate:
		opts := optionValues(data.Options)
		h.startDebate(i, opts[optBrief], opts[optCampaign])
	case cmdRun:
		if len(data.Options) == 0 {
			return
		}
		sub := data.Options[0]
		runID := optionValues(sub.Options)[optRunID]
		switch sub.Name {
		case subCmdView:
			h.showRun(i, runID)
		case subCmdCancel:
			h.cancelRun(i, runID)
		}
	}
}

// optionValues는 문자열 옵션을 이름별로 모읍니다.
func optionValues(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	values := make(map[string]string, len(options))
	for _, opt := range options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			values[opt.Name] = opt.StringValue()
		}
	}
	return values
}
