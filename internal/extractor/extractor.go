// Package extractor pulls complete JSON objects out of a text stream as
// soon as each one closes, without waiting for the enclosing array or the
// end of the stream.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
)

// Event is one chat message produced by the text-generation service.
type Event struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

// Valid reports whether both required fields are present.
func (e Event) Valid() bool {
	return e.Agent != "" && e.Text != ""
}

// Extractor scans an append-only sequence of fragments. It is not safe for
// concurrent use; each streaming session owns its own Extractor.
type Extractor struct {
	buf         []byte
	inString    bool
	escaped     bool
	depth       int
	objectStart int
	scanPos     int

	emitted int
	dropped int
}

// New returns an Extractor with no object open.
func New() *Extractor {
	return &Extractor{objectStart: -1}
}

// Feed appends fragment to the buffer and returns every object completed by it.
// Characters before the previous scan position are never looked at again.
func (x *Extractor) Feed(fragment string) []Event {
	if fragment == "" {
		return nil
	}
	x.buf = append(x.buf, fragment...)

	var out []Event
	for i := x.scanPos; i < len(x.buf); i++ {
		ch := x.buf[i]

		if x.escaped {
			x.escaped = false
			continue
		}
		if ch == '\\' && x.inString {
			x.escaped = true
			continue
		}
		if ch == '"' {
			x.inString = !x.inString
			continue
		}
		if x.inString {
			continue
		}

		switch ch {
		case '{':
			if x.depth == 0 {
				x.objectStart = i
			}
			x.depth++
		case '}':
			// stray closer outside any object
			if x.depth == 0 {
				continue
			}
			x.depth--
			if x.depth == 0 && x.objectStart != -1 {
				if ev, ok := decode(x.buf[x.objectStart : i+1]); ok {
					out = append(out, ev)
					x.emitted++
				} else {
					x.dropped++
				}
				x.objectStart = -1
			}
		}
	}
	x.scanPos = len(x.buf)

	if x.objectStart == -1 && x.depth == 0 {
		if last := bytes.LastIndexByte(x.buf, '}'); last != -1 {
			x.buf = append(x.buf[:0], x.buf[last+1:]...)
			x.scanPos = len(x.buf)
		}
	}

	return out
}

// Finish handles whatever is still buffered once the stream has ended.
// Producers that reply with one finished array instead of discrete objects
// are covered here: when nothing was emitted during the session and the
// leftover parses as an array, its valid elements are returned in order.
// Through Feed this path is rarely reached, since the scan already emits
// every complete object and trims the buffer behind it.
func (x *Extractor) Finish() []Event {
	rest := bytes.TrimSpace(x.buf)
	x.buf = nil
	x.scanPos = 0
	if len(rest) == 0 || x.emitted > 0 {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(rest, &items); err != nil {
		return nil
	}

	var out []Event
	for _, item := range items {
		if ev, ok := decode(item); ok {
			out = append(out, ev)
			x.emitted++
		} else {
			x.dropped++
		}
	}
	return out
}

// Emitted returns how many events the session has produced so far.
func (x *Extractor) Emitted() int { return x.emitted }

// Dropped returns how many complete spans were discarded as malformed or
// missing a required field.
func (x *Extractor) Dropped() int { return x.dropped }

// Buffered returns the number of bytes currently retained.
func (x *Extractor) Buffered() int { return len(x.buf) }

func decode(span []byte) (Event, bool) {
	var ev Event
	if err := json.Unmarshal(span, &ev); err != nil {
		return Event{}, false
	}
	return ev, ev.Valid()
}

// FragmentSource is a pull-style stream of text fragments, shaped like the
// SDK stream types (Next / Current / Err).
type FragmentSource interface {
	Next() bool
	Current() string
	Err() error
}

// Drain feeds every fragment of src through a fresh Extractor and calls emit
// for each event in order, including the ones recovered by Finish. It stops at
// the first error from src, emit, or ctx.
func Drain(ctx context.Context, src FragmentSource, emit func(Event) error) (*Extractor, error) {
	x := New()
	for src.Next() {
		if err := ctx.Err(); err != nil {
			return x, err
		}
		for _, ev := range x.Feed(src.Current()) {
			if err := emit(ev); err != nil {
				return x, err
			}
		}
	}
	if err := src.Err(); err != nil {
		return x, err
	}
	for _, ev := range x.Finish() {
		if err := emit(ev); err != nil {
			return x, err
		}
	}
	return x, nil
}
