package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

var (
	// 통신 관련 에러
	ErrAPITimeout          = errors.New("video API 요청 타임아웃")
	ErrAPIConnectionFailed = errors.New("video API 연결 실패")

	// ErrNoVideoURL은 녹화본 응답에 URL이 없을 때 반환됩니다.
	ErrNoVideoURL = errors.New("video: recording has no video_url")
)

// APIError는 2xx가 아닌 응답입니다.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("video API error [%d]: %s", e.StatusCode, e.Message)
}

// IsTransient는 같은 요청을 나중에 다시 보내면 성공할 수 있는 에러인지 확인합니다.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusRequestTimeout ||
			apiErr.StatusCode >= 500
	}

	switch {
	case errors.Is(err, ErrAPITimeout),
		errors.Is(err, ErrAPIConnectionFailed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsNotFound는 원격 API가 404로 응답했는지 확인합니다.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
