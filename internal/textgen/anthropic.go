package textgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const (
	ProviderAnthropic = "anthropic"

	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
)

// MessagesClient is the subset of the Anthropic SDK used here. It is
// satisfied by *sdk.MessageService and by test stubs.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// AnthropicClient implements Generator on the Messages API.
type AnthropicClient struct {
	msg   MessagesClient
	model string
}

// NewAnthropic wraps an existing messages client.
func NewAnthropic(msg MessagesClient, model string) *AnthropicClient {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicClient{msg: msg, model: model}
}

// NewAnthropicFromAPIKey constructs a client on the default SDK transport.
func NewAnthropicFromAPIKey(apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("textgen: anthropic api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropic(&ac.Messages, model), nil
}

// Complete issues a non-streaming Messages.New call and concatenates the
// text blocks of the reply.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	msg, err := c.msg.New(ctx, c.params(req))
	if err != nil {
		return "", wrapAnthropicError("messages.new", err)
	}
	if msg == nil {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// Stream opens a streaming Messages call and exposes its text deltas.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	stream := c.msg.NewStreaming(ctx, c.params(req))
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, wrapAnthropicError("messages.stream", err)
	}
	return &anthropicStream{stream: stream}, nil
}

func (c *AnthropicClient) params(req Request) sdk.MessageNewParams {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	params := sdk.MessageNewParams{
		MaxTokens: maxTokens(req),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
		Model:     sdk.Model(model),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	return params
}

type anthropicStream struct {
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	cur    string
}

// Next skips every event that is not a text delta.
func (s *anthropicStream) Next() bool {
	for s.stream.Next() {
		event := s.stream.Current()
		ev, ok := event.AsAny().(sdk.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		if delta, ok := ev.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
			s.cur = delta.Text
			return true
		}
	}
	return false
}

func (s *anthropicStream) Current() string { return s.cur }

func (s *anthropicStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return wrapAnthropicError("messages.stream", err)
	}
	return nil
}

func (s *anthropicStream) Close() error { return s.stream.Close() }

func wrapAnthropicError(op string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("anthropic %s: %w: %w", op, ErrRateLimited, err)
	}
	return fmt.Errorf("anthropic %s: %w", op, err)
}
