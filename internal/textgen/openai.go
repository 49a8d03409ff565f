package textgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	ProviderOpenAI = "openai"

	DefaultOpenAIModel = openai.GPT4o
)

// ChatClient captures the subset of the go-openai client used here.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// OpenAIClient implements Generator on the Chat Completions API.
type OpenAIClient struct {
	chat  ChatClient
	model string
}

// NewOpenAI wraps an existing chat client.
func NewOpenAI(chat ChatClient, model string) *OpenAIClient {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{chat: chat, model: model}
}

// NewOpenAIFromAPIKey constructs a client using the default go-openai HTTP client.
func NewOpenAIFromAPIKey(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("textgen: openai api key is required")
	}
	return NewOpenAI(openai.NewClient(apiKey), model), nil
}

// Complete renders a single chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.chat.CreateChatCompletion(ctx, c.request(req, false))
	if err != nil {
		return "", wrapOpenAIError("chat.completions", err)
	}
	var sb strings.Builder
	for _, choice := range resp.Choices {
		sb.WriteString(choice.Message.Content)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// Stream opens a streaming chat completion.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	stream, err := c.chat.CreateChatCompletionStream(ctx, c.request(req, true))
	if err != nil {
		return nil, wrapOpenAIError("chat.completions.stream", err)
	}
	return &openAIStream{stream: stream}, nil
}

func (c *OpenAIClient) request(req Request, stream bool) openai.ChatCompletionRequest {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	return openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: int(maxTokens(req)),
		Stream:    stream,
	}
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
	cur    string
	err    error
	done   bool
}

func (s *openAIStream) Next() bool {
	for !s.done {
		resp, err := s.stream.Recv()
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				s.err = wrapOpenAIError("chat.completions.stream", err)
			}
			return false
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				s.cur = choice.Delta.Content
				return true
			}
		}
	}
	return false
}

func (s *openAIStream) Current() string { return s.cur }
func (s *openAIStream) Err() error      { return s.err }

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}

func wrapOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("openai %s: %w: %w", op, ErrRateLimited, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("openai %s: %w: %w", op, ErrRateLimited, err)
	}
	return fmt.Errorf("openai %s: %w", op, err)
}
