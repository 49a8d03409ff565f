package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/cnap-oss/gridion/internal/textgen"
	"go.uber.org/zap"
)

const combineMaxTokens = 512

const combinePromptTemplate = `You are a senior creative director combining the best elements from three distinct video ad concepts into one unified vision.

Campaign type: %s
Original brief: "%s"

Three agent concepts:
- KINETIC (dynamic, high-energy): "%s"
- CONTEMPLATIVE (atmospheric, emotional): "%s"
- CLASSICAL (elegant, composed): "%s"

Synthesize these into ONE cohesive video prompt that takes the strongest visual elements, emotional beats, and cinematic techniques from each. The result should be 2-3 sentences, vivid and cinematic, a single scene description ready for AI video generation.

Return ONLY the combined prompt text, nothing else.`

// CombineRequest는 세 에이전트 프롬프트를 하나로 합치는 요청입니다.
type CombineRequest struct {
	Brief        string
	CampaignType string
	AgentPrompts map[Role]string
}

// Combine merges the three agent prompts into a single scene prompt.
func (c *Controller) Combine(ctx context.Context, req CombineRequest) (string, error) {
	if strings.TrimSpace(req.Brief) == "" {
		return "", ErrInvalidCombine
	}
	for _, role := range Roles {
		if strings.TrimSpace(req.AgentPrompts[role]) == "" {
			return "", fmt.Errorf("%w: missing %s", ErrInvalidCombine, role)
		}
	}

	campaignType := strings.TrimSpace(req.CampaignType)
	if campaignType == "" {
		campaignType = "general"
	}

	text, err := c.gen.Complete(ctx, textgen.Request{
		Prompt: fmt.Sprintf(combinePromptTemplate,
			campaignType,
			req.Brief,
			req.AgentPrompts[RoleKinetic],
			req.AgentPrompts[RoleContemplative],
			req.AgentPrompts[RoleClassical],
		),
		MaxTokens: combineMaxTokens,
	})
	if err != nil {
		c.logger.Error("Combine failed", zap.Error(err))
		return "", fmt.Errorf("controller: combine: %w", err)
	}
	return strings.TrimSpace(text), nil
}
