// Package video is a REST client for the video-synthesis service: submit a
// scripted simulation, poll it, resolve recordings and fetch the binaries.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client는 비디오 합성 서비스 REST API 클라이언트입니다.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	// fetchClient는 녹화본 다운로드용입니다. 파일이 클 수 있어 전체 타임아웃을 두지 않습니다.
	fetchClient *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// ClientOption은 Client 옵션입니다.
type ClientOption func(*Client)

// WithHTTPClient는 API 호출용 HTTP 클라이언트를 설정합니다.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithFetchClient는 녹화본 다운로드용 HTTP 클라이언트를 설정합니다.
func WithFetchClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.fetchClient = client
	}
}

// WithLogger는 로거를 설정합니다.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit는 초당 요청 수를 제한합니다. 0 이하이면 제한하지 않습니다.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient는 새 비디오 합성 API 클라이언트를 생성합니다.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		fetchClient: &http.Client{},
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Submit은 시뮬레이션 작업을 제출하고 작업 ID를 반환합니다.
func (c *Client) Submit(ctx context.Context, req *SimulateRequest) (*Job, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/simulations", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var job Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("응답 파싱 실패: %w", err)
	}
	if job.JobID == "" {
		return nil, fmt.Errorf("video: submit response has no job_id")
	}

	c.logger.Debug("작업 제출됨", zap.String("job_id", job.JobID))
	return &job, nil
}

// GetStatus는 작업 상태를 조회합니다.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/simulations/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: 응답 파싱 실패: %w", io.ErrUnexpectedEOF, err)
	}
	return &status, nil
}

// GetRecording은 스트림의 녹화본 다운로드 위치를 조회합니다.
func (c *Client) GetRecording(ctx context.Context, streamID string) (*Recording, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/recordings/"+url.PathEscape(streamID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rec Recording
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("응답 파싱 실패: %w", err)
	}
	if rec.VideoURL == "" {
		return nil, ErrNoVideoURL
	}
	return &rec, nil
}

// Fetch는 녹화본 바이너리를 스트림으로 반환합니다. 호출자가 닫아야 합니다.
func (c *Client) Fetch(ctx context.Context, videoURL string) (io.ReadCloser, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("요청 생성 실패: %w", err)
	}

	resp, err := c.fetchClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.handleErrorResponse(resp)
	}
	return resp.Body, nil
}

// ======================================
// Internal Methods
// ======================================

// doRequest는 HTTP 요청을 수행합니다.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := c.buildRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, c.handleErrorResponse(resp)
	}

	return resp, nil
}

// buildRequest는 HTTP 요청을 구성합니다.
func (c *Client) buildRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("요청 바디 직렬화 실패: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("요청 생성 실패: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return req, nil
}

// handleErrorResponse는 에러 응답을 APIError로 변환합니다.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    parsed.Error.Message,
			Body:       string(body),
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("HTTP 에러 [%d]", resp.StatusCode),
		Body:       string(body),
	}
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return fmt.Errorf("%w: %w", ErrAPITimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrAPIConnectionFailed, err)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
