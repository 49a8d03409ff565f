package relay

import (
	"bufio"
	"io"
	"strings"
)

// frameScanner reads the data payloads of an SSE stream. Events end at a
// blank line; multiple data lines are joined with "\n". Comments and other
// fields are skipped.
type frameScanner struct {
	reader  *bufio.Reader
	current string
	err     error
}

func newFrameScanner(r io.Reader) *frameScanner {
	return &frameScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next frame. After it returns false, Err tells a clean
// EOF (nil) from a read error.
func (s *frameScanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = ""

	var data []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			if len(data) > 0 {
				s.current = strings.Join(data, "\n")
				return true
			}
			return false
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 {
				s.current = strings.Join(data, "\n")
				return true
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		if field == "data" {
			data = append(data, strings.TrimPrefix(value, " "))
		}

		// 마지막 줄에 개행 없이 EOF
		if err != nil {
			s.err = err
			if len(data) > 0 {
				s.current = strings.Join(data, "\n")
				return true
			}
			return false
		}
	}
}

// Frame returns the payload found by the last successful Next.
func (s *frameScanner) Frame() string {
	return s.current
}

// Err returns the read error, or nil at a clean EOF.
func (s *frameScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
