package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cnap-oss/gridion/internal/campaign"
	"github.com/cnap-oss/gridion/internal/extractor"
	"github.com/cnap-oss/gridion/internal/textgen"
	"go.uber.org/zap"
)

const expandMaxTokens = 1024

const expandPromptTemplate = `You are a creative director for video advertising. Given a user prompt, create 3 distinct video scene descriptions for an ad.
Return ONLY valid JSON with no other text: { "variations": [{ "role": "kinetic", "prompt": "..." }, { "role": "contemplative", "prompt": "..." }, { "role": "classical", "prompt": "..." }] }
Each should be 1-2 sentences, vivid and cinematic. Kinetic = fast, dynamic, intense energy. Contemplative = slow, atmospheric, meditative calm. Classical = elegant, composed, timeless beauty.%s

User prompt: %s`

// Expander는 brief 하나를 역할별 프롬프트 세 개로 확장합니다.
type Expander struct {
	gen    textgen.Generator
	logger *zap.Logger
}

// NewExpander는 새 Expander를 생성합니다.
func NewExpander(gen textgen.Generator, logger *zap.Logger) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{gen: gen, logger: logger}
}

type expansionResponse struct {
	Variations []struct {
		Role   string `json:"role"`
		Prompt string `json:"prompt"`
	} `json:"variations"`
}

// Expand returns exactly one prompt per role or an *ExpansionError. It never
// returns a partial result.
func (e *Expander) Expand(ctx context.Context, brief, campaignType string) (map[Role]string, error) {
	if strings.TrimSpace(brief) == "" {
		return nil, &ExpansionError{Err: ErrEmptyBrief}
	}

	text, err := e.gen.Complete(ctx, textgen.Request{
		Prompt:    expansionPrompt(brief, campaignType),
		MaxTokens: expandMaxTokens,
	})
	if err != nil {
		return nil, &ExpansionError{Err: err}
	}

	prompts, err := parseVariations(text)
	if err != nil {
		e.logger.Warn("unparseable expansion response",
			zap.Int("length", len(text)),
			zap.Error(err),
		)
		return nil, &ExpansionError{Err: err}
	}
	return prompts, nil
}

func expansionPrompt(brief, campaignType string) string {
	var ctxLine string
	if c := campaign.Context(campaignType); c != "" {
		ctxLine = "\n\nCampaign context: " + c
	}
	return fmt.Sprintf(expandPromptTemplate, ctxLine, brief)
}

// parseVariations requires one non-empty prompt for each role and nothing else.
func parseVariations(text string) (map[Role]string, error) {
	var resp expansionResponse
	if err := json.Unmarshal([]byte(extractor.StripFences(text)), &resp); err != nil {
		return nil, fmt.Errorf("decode variations: %w", err)
	}
	if len(resp.Variations) != len(Roles) {
		return nil, fmt.Errorf("expected %d variations, got %d", len(Roles), len(resp.Variations))
	}

	prompts := make(map[Role]string, len(Roles))
	for _, v := range resp.Variations {
		role, ok := ParseRole(v.Role)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", v.Role)
		}
		if _, dup := prompts[role]; dup {
			return nil, fmt.Errorf("duplicate role %q", v.Role)
		}
		p := strings.TrimSpace(v.Prompt)
		if p == "" {
			return nil, fmt.Errorf("empty prompt for %q", v.Role)
		}
		prompts[role] = p
	}
	return prompts, nil
}
