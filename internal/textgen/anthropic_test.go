package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
	stream     *ssestream.Stream[sdk.MessageStreamEventUnion]
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubMessagesClient) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.lastParams = body
	if s.stream == nil {
		s.stream = ssestream.NewStream[sdk.MessageStreamEventUnion](&testDecoder{}, nil)
	}
	return s.stream
}

// testDecoder feeds a fixed sequence of events to the ssestream.Stream.
type testDecoder struct {
	events []ssestream.Event
	i      int
	err    error
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return d.err }

func textDeltaEvent(text string) ssestream.Event {
	return ssestream.Event{
		Type: "content_block_delta",
		Data: []byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":` + quote(text) + `}}`),
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestAnthropicComplete(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: `{"variations":`},
				{Type: "text", Text: `[]}`},
			},
		},
	}
	client := NewAnthropic(stub, "")

	out, err := client.Complete(context.Background(), Request{Prompt: "brief", MaxTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, `{"variations":[]}`, out)
	assert.Equal(t, int64(512), stub.lastParams.MaxTokens)
	assert.Equal(t, sdk.Model(DefaultAnthropicModel), stub.lastParams.Model)
	require.Len(t, stub.lastParams.Messages, 1)
	assert.Empty(t, stub.lastParams.System)
}

func TestAnthropicComplete_DefaultsAndSystem(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}}}}
	client := NewAnthropic(stub, "claude-test")

	_, err := client.Complete(context.Background(), Request{System: "be brief", Prompt: "hi", Model: "claude-override"})
	require.NoError(t, err)
	assert.Equal(t, int64(defaultMaxTokens), stub.lastParams.MaxTokens)
	assert.Equal(t, sdk.Model("claude-override"), stub.lastParams.Model)
	require.Len(t, stub.lastParams.System, 1)
	assert.Equal(t, "be brief", stub.lastParams.System[0].Text)
}

func TestAnthropicComplete_Errors(t *testing.T) {
	boom := errors.New("connection refused")
	client := NewAnthropic(&stubMessagesClient{err: boom}, "")
	_, err := client.Complete(context.Background(), Request{Prompt: "x"})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrRateLimited)

	empty := NewAnthropic(&stubMessagesClient{resp: &sdk.Message{}}, "")
	_, err = empty.Complete(context.Background(), Request{Prompt: "x"})
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropicStream(t *testing.T) {
	dec := &testDecoder{events: []ssestream.Event{
		{Type: "message_start", Data: []byte(`{"type":"message_start","message":{"id":"m1","type":"message","role":"assistant","content":[],"model":"claude","usage":{"input_tokens":1,"output_tokens":0}}}`)},
		{Type: "content_block_start", Data: []byte(`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)},
		textDeltaEvent(`[{"agent":"kin`),
		textDeltaEvent(`etic","text":"go"}]`),
		{Type: "content_block_stop", Data: []byte(`{"type":"content_block_stop","index":0}`)},
		{Type: "message_stop", Data: []byte(`{"type":"message_stop"}`)},
	}}
	stub := &stubMessagesClient{stream: ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)}
	client := NewAnthropic(stub, "")

	stream, err := client.Stream(context.Background(), Request{Prompt: "debate", MaxTokens: 2048})
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	var fragments []string
	for stream.Next() {
		fragments = append(fragments, stream.Current())
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{`[{"agent":"kin`, `etic","text":"go"}]`}, fragments)
	assert.Equal(t, int64(2048), stub.lastParams.MaxTokens)
}

func TestAnthropicStream_DecoderError(t *testing.T) {
	boom := errors.New("stream reset")
	dec := &testDecoder{events: []ssestream.Event{textDeltaEvent("partial")}, err: boom}
	stub := &stubMessagesClient{stream: ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)}

	stream, err := NewAnthropic(stub, "").Stream(context.Background(), Request{Prompt: "x"})
	if err != nil {
		// the SDK may surface decoder errors before the first event
		require.ErrorIs(t, err, boom)
		return
	}
	for stream.Next() {
	}
	require.ErrorIs(t, stream.Err(), boom)
}
