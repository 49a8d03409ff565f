package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(x *Extractor, fragments ...string) []Event {
	var out []Event
	for _, f := range fragments {
		out = append(out, x.Feed(f)...)
	}
	return out
}

func TestFeed_SplitAtEveryBoundary(t *testing.T) {
	input := `{"agent":"kinetic","text":"hi"}`
	for i := 0; i <= len(input); i++ {
		for j := i; j <= len(input); j++ {
			x := New()
			got := feedAll(x, input[:i], input[i:j], input[j:])
			require.Equal(t, []Event{{Agent: "kinetic", Text: "hi"}}, got, "split at %d/%d", i, j)
		}
	}
}

func TestFeed_MidStringSplit(t *testing.T) {
	x := New()
	require.Empty(t, x.Feed(`[{"agent":"kinetic","text":"h`))
	got := x.Feed(`i"}`)
	require.Equal(t, []Event{{Agent: "kinetic", Text: "hi"}}, got)
}

func TestFeed_EscapedQuotesAndBackslashes(t *testing.T) {
	x := New()
	got := x.Feed(`{"agent":"k","text":"a \"quoted\" word \\ and {brace}"}`)
	require.Len(t, got, 1)
	assert.Equal(t, `a "quoted" word \ and {brace}`, got[0].Text)
}

func TestFeed_BracesInsideStringsDoNotCount(t *testing.T) {
	x := New()
	got := feedAll(x, `{"agent":"k","text":"}}}{{"}`, `{"agent":"c","text":"ok"}`)
	require.Equal(t, []Event{{Agent: "k", Text: "}}}{{"}, {Agent: "c", Text: "ok"}}, got)
}

func TestFeed_MalformedSpanDropped(t *testing.T) {
	x := New()
	got := feedAll(x, `{"agent":"k",}`, `{"agent":"k","text":"ok"}`)
	require.Equal(t, []Event{{Agent: "k", Text: "ok"}}, got)
	assert.Equal(t, 1, x.Dropped())
	assert.Equal(t, 1, x.Emitted())
}

func TestFeed_MissingFieldsDropped(t *testing.T) {
	x := New()
	got := feedAll(x, `[{"agent":"k"},{"text":"t"},{"agent":"","text":"x"},{"agent":"a","text":"b"}]`)
	require.Equal(t, []Event{{Agent: "a", Text: "b"}}, got)
	assert.Equal(t, 3, x.Dropped())
}

func TestFeed_NestedObject(t *testing.T) {
	x := New()
	got := x.Feed(`{"agent":"k","text":"t","meta":{"n":1}}`)
	require.Equal(t, []Event{{Agent: "k", Text: "t"}}, got)
}

func TestFeed_StrayClosingBraceIgnored(t *testing.T) {
	x := New()
	got := feedAll(x, "noise } more ", `{"agent":"a","text":"b"}`)
	require.Equal(t, []Event{{Agent: "a", Text: "b"}}, got)
}

func TestFeed_TrimsConsumedBuffer(t *testing.T) {
	x := New()
	x.Feed(`[{"agent":"a","text":"b"}, `)
	assert.Equal(t, len(", "), x.Buffered())

	// 열린 객체가 있으면 잘라내지 않음
	x.Feed(`{"agent":"c","te`)
	assert.Equal(t, len(`, {"agent":"c","te`), x.Buffered())
}

func TestFinish_ArrayFallback(t *testing.T) {
	// 스트리밍 중 아무것도 내보내지 못한 경우에만 배열로 해석
	x := &Extractor{objectStart: -1, buf: []byte(`  [{"agent":"a","text":"1"},{"agent":"b"},{"agent":"c","text":"3"}] `)}
	got := x.Finish()
	require.Equal(t, []Event{{Agent: "a", Text: "1"}, {Agent: "c", Text: "3"}}, got)
}

func TestFinish_NoFallbackAfterEmission(t *testing.T) {
	x := New()
	require.Len(t, x.Feed(`{"agent":"a","text":"1"}`), 1)
	x.buf = []byte(`[{"agent":"b","text":"2"}]`)
	require.Empty(t, x.Finish())
}

func TestFinish_GarbageIgnored(t *testing.T) {
	x := New()
	x.Feed(`not json at all`)
	require.Empty(t, x.Finish())
	require.Zero(t, x.Buffered())
}

type sliceSource struct {
	items []string
	i     int
	err   error
}

func (s *sliceSource) Next() bool {
	if s.i >= len(s.items) {
		return false
	}
	s.i++
	return true
}
func (s *sliceSource) Current() string { return s.items[s.i-1] }
func (s *sliceSource) Err() error      { return s.err }

func TestDrain(t *testing.T) {
	src := &sliceSource{items: []string{`[{"agent":"kinetic",`, `"text":"go fast"},`, `{"agent":"classical","text":"be calm"}]`}}

	var got []Event
	x, err := Drain(context.Background(), src, func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, x.Emitted())
	require.Equal(t, []Event{{Agent: "kinetic", Text: "go fast"}, {Agent: "classical", Text: "be calm"}}, got)
}

func TestDrain_SourceError(t *testing.T) {
	boom := errors.New("upstream reset")
	src := &sliceSource{items: []string{`{"agent":"a","text":"b"}`}, err: boom}

	var got []Event
	_, err := Drain(context.Background(), src, func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.ErrorIs(t, err, boom)
	require.Len(t, got, 1)
}

func TestDrain_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &sliceSource{items: []string{`{"agent":"a","text":"b"}`}}

	_, err := Drain(ctx, src, func(Event) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  \n", `{"a":1}`},
		{"fence without newline", "```json{\"a\":1}```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripFences(tt.input))
		})
	}
}
