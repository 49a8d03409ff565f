package mocks

import (
	"context"
	"sync"

	"github.com/cnap-oss/gridion/internal/textgen"
)

// MockGenerator는 테스트용 textgen.Generator 구현입니다.
type MockGenerator struct {
	mu sync.Mutex

	// Response는 Complete의 기본 응답입니다.
	Response string
	// Err가 설정되면 Complete가 이 에러를 반환합니다.
	Err error
	// CompleteFunc가 설정되면 Response/Err 대신 호출됩니다.
	CompleteFunc func(ctx context.Context, req textgen.Request) (string, error)

	// Fragments는 Stream이 순서대로 내보낼 텍스트 조각입니다.
	Fragments []string
	// StreamErr는 조각을 모두 내보낸 뒤 Err()로 보고됩니다.
	StreamErr error
	// OpenErr가 설정되면 Stream 호출 자체가 실패합니다.
	OpenErr error

	// Calls는 호출 기록입니다.
	Calls []textgen.Request
}

// ensure MockGenerator implements Generator
var _ textgen.Generator = (*MockGenerator)(nil)

// Complete implements textgen.Generator.
func (m *MockGenerator) Complete(ctx context.Context, req textgen.Request) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn, resp, err := m.CompleteFunc, m.Response, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

// Stream implements textgen.Generator.
func (m *MockGenerator) Stream(ctx context.Context, req textgen.Request) (textgen.FragmentStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)

	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	return &FragmentStream{ctx: ctx, fragments: append([]string(nil), m.Fragments...), err: m.StreamErr}, nil
}

// Requests returns a copy of the recorded calls.
func (m *MockGenerator) Requests() []textgen.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]textgen.Request(nil), m.Calls...)
}

// FragmentStream은 고정된 조각 목록을 내보내는 스트림입니다.
type FragmentStream struct {
	ctx       context.Context
	fragments []string
	cur       string
	err       error
	ctxErr    error
	closed    bool
}

// NewFragmentStream creates a stream over fragments that ends with err.
func NewFragmentStream(fragments []string, err error) *FragmentStream {
	return &FragmentStream{ctx: context.Background(), fragments: fragments, err: err}
}

// Next implements textgen.FragmentStream.
func (s *FragmentStream) Next() bool {
	if s.closed || len(s.fragments) == 0 {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.ctxErr = err
		return false
	}
	s.cur, s.fragments = s.fragments[0], s.fragments[1:]
	return true
}

// Current implements textgen.FragmentStream.
func (s *FragmentStream) Current() string { return s.cur }

// Err implements textgen.FragmentStream.
func (s *FragmentStream) Err() error {
	if s.ctxErr != nil {
		return s.ctxErr
	}
	if len(s.fragments) > 0 {
		return nil
	}
	return s.err
}

// Close implements textgen.FragmentStream.
func (s *FragmentStream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *FragmentStream) Closed() bool { return s.closed }
