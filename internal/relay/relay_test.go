package relay_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cnap-oss/gridion/internal/extractor"
	"github.com/cnap-oss/gridion/internal/relay"
	"github.com/cnap-oss/gridion/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingWriter struct {
	frames []string
	failAt int
}

func (w *recordingWriter) WriteEvent(ev extractor.Event) error {
	if w.failAt > 0 && len(w.frames)+1 == w.failAt {
		return errors.New("client gone")
	}
	w.frames = append(w.frames, ev.Agent+":"+ev.Text)
	return nil
}

func (w *recordingWriter) WriteDone() error {
	w.frames = append(w.frames, relay.DoneMarker)
	return nil
}

func TestRelay_StreamEmitsEventsThenDone(t *testing.T) {
	gen := &mocks.MockGenerator{Fragments: []string{
		`[{"agent":"kin`, `etic","text":"Go big!"},`,
		` {"agent":"contemplative","te`, `xt":"Slow down."}, {"agent":"x",}`,
		`, {"agent":"classical","text":"Balance {both}."}]`,
	}}
	r := relay.New(gen, zaptest.NewLogger(t))
	w := &recordingWriter{}

	err := r.Stream(context.Background(), relay.ChatRequest{Prompt: "shoes", CampaignType: "brand-story"}, w)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"kinetic:Go big!",
		"contemplative:Slow down.",
		"classical:Balance {both}.",
		relay.DoneMarker,
	}, w.frames)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, int64(2048), reqs[0].MaxTokens)
	assert.Contains(t, reqs[0].Prompt, `create a "Brand Story" ad for: "shoes"`)
}

func TestRelay_StreamFallsBackToWholeArray(t *testing.T) {
	// 객체가 하나도 닫히지 않은 채 끝난 경우는 Finish가 처리
	gen := &mocks.MockGenerator{Fragments: []string{`[]`}}
	w := &recordingWriter{}

	require.NoError(t, relay.New(gen, nil).Stream(context.Background(), relay.ChatRequest{Prompt: "p"}, w))
	assert.Equal(t, []string{relay.DoneMarker}, w.frames)
}

func TestRelay_StreamRejectsEmptyPrompt(t *testing.T) {
	gen := &mocks.MockGenerator{}
	err := relay.New(gen, nil).Stream(context.Background(), relay.ChatRequest{Prompt: "  "}, &recordingWriter{})
	assert.ErrorIs(t, err, relay.ErrEmptyPrompt)
	assert.Empty(t, gen.Requests())
}

func TestRelay_StreamUpstreamErrors(t *testing.T) {
	upstream := errors.New("connection reset")

	gen := &mocks.MockGenerator{OpenErr: upstream}
	w := &recordingWriter{}
	err := relay.New(gen, nil).Stream(context.Background(), relay.ChatRequest{Prompt: "p"}, w)
	assert.ErrorIs(t, err, upstream)
	assert.Empty(t, w.frames)

	gen = &mocks.MockGenerator{Fragments: []string{`{"agent":"kinetic","text":"a"}`}, StreamErr: upstream}
	w = &recordingWriter{}
	err = relay.New(gen, nil).Stream(context.Background(), relay.ChatRequest{Prompt: "p"}, w)
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, []string{"kinetic:a", relay.DoneMarker}, w.frames)
}

func TestRelay_OpenBeforePump(t *testing.T) {
	upstream := errors.New("upstream down")
	gen := &mocks.MockGenerator{OpenErr: upstream}
	r := relay.New(gen, zaptest.NewLogger(t))

	// 열기 실패는 아무 프레임도 쓰기 전에 드러나야 함
	sess, err := r.Open(context.Background(), relay.ChatRequest{Prompt: "p"})
	assert.ErrorIs(t, err, upstream)
	assert.Nil(t, sess)

	gen.OpenErr = nil
	gen.Fragments = []string{`{"agent":"kinetic","text":"a"}`}
	sess, err = r.Open(context.Background(), relay.ChatRequest{Prompt: "p"})
	require.NoError(t, err)

	w := &recordingWriter{}
	require.NoError(t, sess.Pump(context.Background(), w))
	assert.Equal(t, []string{"kinetic:a", relay.DoneMarker}, w.frames)
}

func TestRelay_StreamStopsOnWriterError(t *testing.T) {
	gen := &mocks.MockGenerator{Fragments: []string{
		`{"agent":"kinetic","text":"a"}`, `{"agent":"classical","text":"b"}`, `{"agent":"kinetic","text":"c"}`,
	}}
	w := &recordingWriter{failAt: 2}

	err := relay.New(gen, nil).Stream(context.Background(), relay.ChatRequest{Prompt: "p"}, w)
	assert.Error(t, err)
	assert.Equal(t, []string{"kinetic:a"}, w.frames)
}

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := relay.NewSSEWriter(rec)

	require.NoError(t, w.WriteEvent(extractor.Event{Agent: "kinetic", Text: `say "hi"`}))
	require.NoError(t, w.WriteDone())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "data: {\"agent\":\"kinetic\",\"text\":\"say \\\"hi\\\"\"}\n\ndata: [DONE]\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func noSleep(delays *[]time.Duration) relay.ConsumerOption {
	return relay.WithSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	})
}

func TestConsumer_DeliversUntilDone(t *testing.T) {
	body := strings.NewReader(
		": keep-alive\n\n" +
			"data: {\"agent\":\"kinetic\",\"text\":\"one\"}\n\n" +
			"data: not json\n\n" +
			"data: {\"agent\":\"classical\"}\n\n" +
			"data: {\"agent\":\"contemplative\",\"text\":\"two\"}\r\n\r\n" +
			"data: [DONE]\n\n" +
			"data: {\"agent\":\"kinetic\",\"text\":\"after done\"}\n\n")

	var delays []time.Duration
	values := []float64{0, 0.5, 0.999}
	i := 0
	c := relay.NewConsumer(noSleep(&delays), relay.WithRand(func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}))

	var got []extractor.Event
	res, err := c.Consume(context.Background(), body, func(ev extractor.Event) { got = append(got, ev) })
	require.NoError(t, err)

	assert.True(t, res.Done)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, []extractor.Event{
		{Agent: "kinetic", Text: "one"},
		{Agent: "contemplative", Text: "two"},
	}, got)
	assert.Equal(t, []time.Duration{600 * time.Millisecond, 1000 * time.Millisecond}, delays)
}

func TestConsumer_EOFWithoutDone(t *testing.T) {
	var delays []time.Duration
	c := relay.NewConsumer(noSleep(&delays))

	res, err := c.Consume(context.Background(),
		strings.NewReader("data: {\"agent\":\"kinetic\",\"text\":\"one\"}"),
		func(extractor.Event) {})
	require.NoError(t, err)
	assert.False(t, res.Done)
	assert.Equal(t, 1, res.Delivered)
	require.Len(t, delays, 1)
	assert.GreaterOrEqual(t, delays[0], relay.DefaultMinDelay)
	assert.Less(t, delays[0], relay.DefaultMaxDelay)
}

func TestConsumer_CancelStopsDelivery(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	c := relay.NewConsumer(relay.WithDelay(time.Hour, time.Hour))

	var (
		mu  sync.Mutex
		got []extractor.Event
	)
	done := make(chan error, 1)
	go func() {
		_, err := c.Consume(ctx, pr, func(ev extractor.Event) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		})
		done <- err
	}()

	go func() {
		_, _ = io.WriteString(pw, "data: {\"agent\":\"kinetic\",\"text\":\"one\"}\n\n")
	}()

	// 첫 이벤트의 표시 대기 중에 취소
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, got)
}

func TestConsumer_CancelUnblocksRead(t *testing.T) {
	pr, _ := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	c := relay.NewConsumer()

	done := make(chan error, 1)
	go func() {
		_, err := c.Consume(ctx, pr, func(extractor.Event) {})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked read was not interrupted")
	}
}

func TestConsumer_ChatEndToEnd(t *testing.T) {
	gen := &mocks.MockGenerator{Fragments: []string{
		`[{"agent":"kinetic","text":"Fast!"},`, `{"agent":"classical","text":"Composed."}]`,
	}}
	r := relay.New(gen, zaptest.NewLogger(t))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/api/chat", req.URL.Path)
		assert.Equal(t, http.MethodPost, req.Method)
		_ = r.Stream(req.Context(), relay.ChatRequest{Prompt: "shoes"}, relay.NewSSEWriter(w))
	}))
	defer server.Close()

	var delays []time.Duration
	c := relay.NewConsumer(noSleep(&delays))

	var got []string
	res, err := c.Chat(context.Background(), server.URL, relay.ChatRequest{Prompt: "shoes"}, func(ev extractor.Event) {
		got = append(got, ev.Agent)
	})
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, []string{"kinetic", "classical"}, got)
}

func TestConsumer_ChatHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, `{"error":"prompt required"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := relay.NewConsumer().Chat(context.Background(), server.URL, relay.ChatRequest{}, func(extractor.Event) {})
	assert.ErrorContains(t, err, "HTTP 400")
}
