package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/cnap-oss/gridion/internal/extractor"
	"go.uber.org/zap"
)

// 표시 간격 기본값
const (
	DefaultMinDelay = 600 * time.Millisecond
	DefaultMaxDelay = 1400 * time.Millisecond
)

// Result summarizes one consumed conversation.
type Result struct {
	Delivered int
	// Done is true when the end-of-stream frame was seen, false when the
	// connection simply closed.
	Done bool
}

// ConsumerOption은 Consumer 옵션입니다.
type ConsumerOption func(*Consumer)

// WithDelay는 이벤트 사이 표시 간격 범위를 지정합니다.
func WithDelay(lo, hi time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.minDelay, c.maxDelay = lo, hi
	}
}

// WithRand는 [0,1) 난수 소스를 바꿉니다.
func WithRand(f func() float64) ConsumerOption {
	return func(c *Consumer) {
		c.rand = f
	}
}

// WithSleep는 대기 함수를 바꿉니다. 테스트용.
func WithSleep(f func(ctx context.Context, d time.Duration) error) ConsumerOption {
	return func(c *Consumer) {
		c.sleep = f
	}
}

// WithConsumerLogger는 로거를 지정합니다.
func WithConsumerLogger(logger *zap.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithHTTPClient는 Chat에서 사용할 HTTP 클라이언트를 지정합니다.
func WithHTTPClient(client *http.Client) ConsumerOption {
	return func(c *Consumer) {
		c.httpClient = client
	}
}

// Consumer는 relay 프레임을 읽어 일정 간격을 두고 전달합니다.
type Consumer struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	rand       func() float64
	sleep      func(ctx context.Context, d time.Duration) error
	httpClient *http.Client
	logger     *zap.Logger
}

// NewConsumer는 새 Consumer를 생성합니다.
func NewConsumer(opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		minDelay:   DefaultMinDelay,
		maxDelay:   DefaultMaxDelay,
		rand:       rand.Float64,
		sleep:      sleepCtx,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consume reads frames from body and hands each valid event to deliver after
// a random pause. It returns at the done frame or EOF. Once ctx is done no
// further event is delivered; body is closed if it is an io.Closer so a
// blocked read returns.
func (c *Consumer) Consume(ctx context.Context, body io.Reader, deliver func(extractor.Event)) (Result, error) {
	var res Result

	if closer, ok := body.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	scanner := newFrameScanner(body)
	for scanner.Next() {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		data := strings.TrimSpace(scanner.Frame())
		if data == DoneMarker {
			res.Done = true
			return res, nil
		}

		var ev extractor.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil || !ev.Valid() {
			c.logger.Debug("Skipping frame", zap.String("data", data))
			continue
		}

		if err := c.sleep(ctx, c.stagger()); err != nil {
			return res, err
		}
		deliver(ev)
		res.Delivered++
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, scanner.Err()
}

// Chat posts req to the relay endpoint at serverURL and consumes the reply.
func (c *Consumer) Chat(ctx context.Context, serverURL string, req ChatRequest, deliver func(extractor.Event)) (Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(serverURL, "/")+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("요청 생성 실패: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("relay: chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("relay: chat request: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return c.Consume(ctx, resp.Body, deliver)
}

func (c *Consumer) stagger() time.Duration {
	span := c.maxDelay - c.minDelay
	if span <= 0 {
		return c.minDelay
	}
	return c.minDelay + time.Duration(c.rand()*float64(span))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
