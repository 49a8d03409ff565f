package video

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestClient_Submit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simulations", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key_123", r.Header.Get("Authorization"))

		var req SimulateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Script, 3)
		assert.False(t, req.Portrait)
		assert.Equal(t, "a fox", req.Script[0].Start.Prompt)
		assert.Equal(t, int64(3000), req.Script[1].TimestampMS)
		assert.Equal(t, "a fox", req.Script[1].Interact.Prompt)
		assert.NotNil(t, req.Script[2].End)

		_ = json.NewEncoder(w).Encode(Job{JobID: "job_1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key_123", WithLogger(zaptest.NewLogger(t)))
	job, err := client.Submit(context.Background(), &SimulateRequest{Script: NewScript("a fox")})

	require.NoError(t, err)
	assert.Equal(t, "job_1", job.JobID)
}

func TestClient_SubmitWireFormat(t *testing.T) {
	data, err := json.Marshal(SimulateRequest{Script: NewScript("p")})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"script": [
			{"timestamp_ms": 0, "start": {"prompt": "p"}},
			{"timestamp_ms": 3000, "interact": {"prompt": "p"}},
			{"timestamp_ms": 9000, "end": {}}
		],
		"portrait": false
	}`, string(data))
}

func TestClient_GetStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simulations/job_1", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"job_id":"job_1","status":"completed","streams":[{"stream_id":"s1"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	status, err := client.GetStatus(context.Background(), "job_1")

	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, status.Status)
	assert.True(t, status.Terminal())
	require.Len(t, status.Streams, 1)
	assert.Equal(t, "s1", status.Streams[0].StreamID)
}

func TestClient_GetRecording(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/recordings/s1":
			_, _ = w.Write([]byte(`{"stream_id":"s1","video_url":"https://cdn.example/s1.mp4"}`))
		case "/recordings/s2":
			_, _ = w.Write([]byte(`{"stream_id":"s2"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	rec, err := client.GetRecording(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/s1.mp4", rec.VideoURL)

	_, err = client.GetRecording(context.Background(), "s2")
	assert.ErrorIs(t, err, ErrNoVideoURL)
}

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp4" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")

	body, err := client.Fetch(context.Background(), server.URL+"/v.mp4")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "mp4-bytes", string(data))

	_, err = client.Fetch(context.Background(), server.URL+"/missing.mp4")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClient_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"type":"overloaded","message":"try later"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.GetStatus(context.Background(), "job_1")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "try later", apiErr.Message)
	assert.True(t, IsTransient(err))
}

func TestClient_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, "")
	_, err := client.GetStatus(context.Background(), "job_1")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPIConnectionFailed)
	assert.True(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &APIError{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &APIError{StatusCode: http.StatusBadGateway}, true},
		{"not found", &APIError{StatusCode: http.StatusNotFound}, false},
		{"unauthorized", &APIError{StatusCode: http.StatusUnauthorized}, false},
		{"timeout", ErrAPITimeout, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
