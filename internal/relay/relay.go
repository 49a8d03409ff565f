// Package relay streams a three-director debate: the server half pipes a
// text-generation stream through the extractor into SSE frames, the consumer
// half reads those frames back with presentation pacing.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cnap-oss/gridion/internal/campaign"
	"github.com/cnap-oss/gridion/internal/extractor"
	"github.com/cnap-oss/gridion/internal/textgen"
	"go.uber.org/zap"
)

// DoneMarker is the data payload of the end-of-stream frame.
const DoneMarker = "[DONE]"

const chatMaxTokens = 2048

// ErrEmptyPrompt는 채팅 요청에 프롬프트가 없을 때 반환됩니다.
var ErrEmptyPrompt = errors.New("relay: prompt required")

// ChatRequest는 채팅 요청입니다.
type ChatRequest struct {
	Prompt       string `json:"prompt"`
	CampaignType string `json:"campaignType,omitempty"`
}

// FrameWriter receives relay frames in order.
type FrameWriter interface {
	WriteEvent(ev extractor.Event) error
	WriteDone() error
}

// Relay는 텍스트 생성 스트림을 이벤트 프레임으로 중계합니다.
type Relay struct {
	gen    textgen.Generator
	logger *zap.Logger
}

// New는 새 Relay를 생성합니다.
func New(gen textgen.Generator, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{gen: gen, logger: logger}
}

// Stream opens the upstream and relays it into w. See Open and Pump.
func (r *Relay) Stream(ctx context.Context, req ChatRequest, w FrameWriter) error {
	sess, err := r.Open(ctx, req)
	if err != nil {
		return err
	}
	return sess.Pump(ctx, w)
}

// Open starts the upstream text stream without writing anything, so callers
// can still report an open failure as a plain error response.
func (r *Relay) Open(ctx context.Context, req ChatRequest) (*Session, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	stream, err := r.gen.Stream(ctx, textgen.Request{
		Prompt:    chatPrompt(req.Prompt, req.CampaignType),
		MaxTokens: chatMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("relay: open stream: %w", err)
	}
	return &Session{stream: stream, logger: r.logger}, nil
}

// Session은 열린 업스트림 스트림 하나입니다. Pump는 한 번만 호출합니다.
type Session struct {
	stream textgen.FragmentStream
	logger *zap.Logger
}

// Close releases the upstream without relaying it.
func (s *Session) Close() error {
	return s.stream.Close()
}

// Pump writes every event as soon as the extractor closes it, then the done
// frame once the upstream stream ends, and closes the session. If the
// upstream fails midway the events already relayed stand and the done frame
// is still written; the upstream error is returned. Writer errors and
// cancellation stop the relay without a done frame.
func (s *Session) Pump(ctx context.Context, w FrameWriter) error {
	defer s.stream.Close()

	var writeErr error
	x, err := extractor.Drain(ctx, s.stream, func(ev extractor.Event) error {
		if werr := w.WriteEvent(ev); werr != nil {
			writeErr = werr
			return werr
		}
		return nil
	})

	fields := []zap.Field{
		zap.Int("emitted", x.Emitted()),
		zap.Int("dropped", x.Dropped()),
	}
	switch {
	case writeErr != nil:
		s.logger.Debug("Consumer went away", append(fields, zap.Error(writeErr))...)
		return fmt.Errorf("relay: write frame: %w", writeErr)
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		s.logger.Warn("Upstream stream failed", append(fields, zap.Error(err))...)
		if derr := w.WriteDone(); derr != nil {
			return fmt.Errorf("relay: write done: %w", derr)
		}
		return fmt.Errorf("relay: upstream: %w", err)
	}

	s.logger.Debug("Chat relayed", fields...)
	return w.WriteDone()
}

// SSEWriter는 FrameWriter를 Server-Sent Events로 구현합니다.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter sets the event-stream headers on w and returns a writer that
// flushes after every frame.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	flusher, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: flusher}
}

// WriteEvent implements FrameWriter.
func (s *SSEWriter) WriteEvent(ev extractor.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.frame(data)
}

// WriteDone implements FrameWriter.
func (s *SSEWriter) WriteDone() error {
	return s.frame([]byte(DoneMarker))
}

func (s *SSEWriter) frame(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

const chatPromptTemplate = `You are simulating a creative agency meeting between three AI video directors debating how to approach an ad campaign. Each has a distinct personality and visual philosophy:

- **KINETIC**: Loud, passionate, loves speed. Thinks every ad needs explosions of energy, rapid cuts, and intense visuals. Pushes for bold, in-your-face approaches. Uses short punchy sentences.
- **CONTEMPLATIVE**: Quiet, thoughtful, poetic. Believes in the power of silence, slow reveals, and emotional resonance. Often disagrees with Kinetic. Speaks in flowing, measured prose.
- **CLASSICAL**: Refined, authoritative, experienced. Values composition, symmetry, and timeless elegance. Acts as the mediator but has strong opinions about "proper" filmmaking. Speaks formally.

They are discussing how to create a "%s" ad for: "%s"

Rules:
- Output ONLY a JSON array of message objects: [{"agent": "kinetic", "text": "..."}, ...]
- Generate 8-12 messages total showing a natural back-and-forth debate
- They should disagree, build on each other's ideas, and eventually converge on a shared vision
- Keep each message 1-3 sentences. Natural and conversational, not stiff.
- They should reference the specific prompt/product and be concrete, not generic
- No markdown, no code fences, just the raw JSON array`

func chatPrompt(prompt, campaignType string) string {
	return fmt.Sprintf(chatPromptTemplate, campaign.Label(campaignType), prompt)
}
