package textgen

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChatClient struct {
	response openai.ChatCompletionResponse
	err      error
	captured openai.ChatCompletionRequest
}

func (m *mockChatClient) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.captured = request
	return m.response, m.err
}

func (m *mockChatClient) CreateChatCompletionStream(context.Context, openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	return nil, fmt.Errorf("not implemented")
}

func TestOpenAIComplete(t *testing.T) {
	mock := &mockChatClient{
		response: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "combined prompt"}},
			},
		},
	}
	client := NewOpenAI(mock, "")

	out, err := client.Complete(context.Background(), Request{System: "sys", Prompt: "merge", MaxTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, "combined prompt", out)
	assert.Equal(t, DefaultOpenAIModel, mock.captured.Model)
	assert.Equal(t, 512, mock.captured.MaxTokens)
	require.Len(t, mock.captured.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, mock.captured.Messages[0].Role)
	assert.Equal(t, "merge", mock.captured.Messages[1].Content)
}

func TestOpenAIComplete_Empty(t *testing.T) {
	client := NewOpenAI(&mockChatClient{}, "gpt-test")
	_, err := client.Complete(context.Background(), Request{Prompt: "x"})
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIComplete_RateLimited(t *testing.T) {
	mock := &mockChatClient{err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}}
	_, err := NewOpenAI(mock, "").Complete(context.Background(), Request{Prompt: "x"})
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestOpenAIStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{`[{\"agent\":\"classical\",`, `\"text\":\"poise\"}]`} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"%s\"}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"
	client := NewOpenAI(openai.NewClientWithConfig(cfg), "")

	stream, err := client.Stream(context.Background(), Request{Prompt: "debate"})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var fragments []string
	for stream.Next() {
		fragments = append(fragments, stream.Current())
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{`[{"agent":"classical",`, `"text":"poise"}]`}, fragments)
}
