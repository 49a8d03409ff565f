package handlers

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/cnap-oss/gridion/internal/campaign"
	"github.com/cnap-oss/gridion/internal/controller"
	"github.com/cnap-oss/gridion/internal/extractor"
)

const (
	colorRunning  = 0x0099ff
	colorComplete = 0x00ff00
	colorFailed   = 0xff0000

	// Discord 임베드 필드 값 제한은 1024자
	maxFieldLen   = 1024
	maxMessageLen = 2000
)

var agentStatusIcons = map[string]string{
	controller.AgentStatusWaiting:     "⏳",
	controller.AgentStatusSubmitting:  "📤",
	controller.AgentStatusProcessing:  "🎬",
	controller.AgentStatusDownloading: "📥",
	controller.AgentStatusDone:        "✅",
	controller.AgentStatusFailed:      "❌",
}

// RunEmbed renders a Run snapshot. Video links are prefixed with publicURL
// when it is set.
func RunEmbed(snap *controller.RunSnapshot, publicURL string) *discordgo.MessageEmbed {
	color := colorRunning
	switch snap.Status {
	case controller.RunStatusComplete:
		color = colorComplete
	case controller.RunStatusFailed:
		color = colorFailed
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🎥 " + snap.ID,
		Description: truncate(snap.Brief, 300),
		Color:       color,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%s · %s", campaign.Label(snap.CampaignType), snap.Status),
		},
	}

	for _, a := range snap.Agents {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s %s", agentStatusIcons[a.Status], roleLabel(a.Role)),
			Value: agentFieldValue(a, publicURL),
		})
	}

	if snap.Error != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "오류", Value: truncate(*snap.Error, maxFieldLen)})
	}
	return embed
}

func agentFieldValue(a controller.AgentSnapshot, publicURL string) string {
	var b strings.Builder
	b.WriteString(a.Status)
	if a.Prompt != nil {
		b.WriteString("\n> ")
		b.WriteString(truncate(*a.Prompt, 300))
	}
	if a.VideoPath != nil {
		fmt.Fprintf(&b, "\n[영상 보기](%s%s)", publicURL, *a.VideoPath)
	}
	return truncate(b.String(), maxFieldLen)
}

// snapshotKey는 임베드에 보이는 상태가 바뀌었는지 판단하는 키입니다.
func snapshotKey(snap *controller.RunSnapshot) string {
	var b strings.Builder
	b.WriteString(snap.Status)
	for _, a := range snap.Agents {
		b.WriteByte('|')
		b.WriteString(a.Status)
		if a.Prompt != nil {
			b.WriteByte('p')
		}
	}
	return b.String()
}

// FormatEvent renders one debate line for a thread message.
func FormatEvent(ev extractor.Event) string {
	return truncate(fmt.Sprintf("**%s**: %s", roleLabel(ev.Agent), ev.Text), maxMessageLen)
}

func roleLabel(role string) string {
	return strings.ToUpper(role)
}

// truncate는 문자열을 최대 길이(rune 기준)로 자르고 "..."을 추가합니다.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}
