package mocks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cnap-oss/gridion/internal/video"
)

// JobPlan은 프롬프트 하나에 대한 가짜 작업의 동작입니다.
type JobPlan struct {
	// SubmitStatus가 0이 아니면 제출이 이 HTTP 상태로 실패합니다.
	SubmitStatus int
	// PollsBeforeTerminal은 terminal 상태 전까지 running을 돌려줄 횟수입니다.
	PollsBeforeTerminal int
	// NotFoundPolls는 처음 N번의 상태 조회를 404로 실패시킵니다.
	NotFoundPolls int
	// TransientErrors는 그 다음 N번의 상태 조회를 503으로 실패시킵니다.
	TransientErrors int
	// FinalStatus가 비어 있으면 completed.
	FinalStatus string
	// Hang이면 terminal 상태에 도달하지 않습니다.
	Hang bool
	// Streams는 완료 시 출력 스트림 수입니다. 기본 1.
	Streams int
	// NoStreams면 출력 스트림 없이 완료됩니다.
	NoStreams bool
	// DownloadStatus가 0이 아니면 녹화본 다운로드가 이 상태로 실패합니다.
	DownloadStatus int
	// Payload는 녹화본 내용입니다. 기본은 "video:<job_id>".
	Payload []byte
}

type fakeJob struct {
	id     string
	prompt string
	plan   JobPlan
	polls  int
}

// FakeVideo는 httptest 기반 가짜 비디오 합성 서비스입니다.
type FakeVideo struct {
	Server *httptest.Server

	mu      sync.Mutex
	plans   map[string]JobPlan
	jobs    map[string]*fakeJob
	streams map[string]*fakeJob
	events  []string
	seq     int
}

// NewFakeVideo는 서버를 시작하고 테스트 종료 시 닫습니다.
func NewFakeVideo(t testing.TB) *FakeVideo {
	f := &FakeVideo{
		plans:   make(map[string]JobPlan),
		jobs:    make(map[string]*fakeJob),
		streams: make(map[string]*fakeJob),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake service.
func (f *FakeVideo) URL() string {
	return f.Server.URL
}

// Client returns a video.Client pointed at the fake service.
func (f *FakeVideo) Client(opts ...video.ClientOption) *video.Client {
	return video.NewClient(f.Server.URL, "test-key", opts...)
}

// Plan sets the behaviour of jobs whose prompt contains substr.
func (f *FakeVideo) Plan(substr string, plan JobPlan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans[substr] = plan
}

// Events returns the ordered request log, e.g. "submit:<prompt>",
// "terminal:<job>", "fetch:<job>".
func (f *FakeVideo) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *FakeVideo) planFor(prompt string) JobPlan {
	for substr, plan := range f.plans {
		if strings.Contains(prompt, substr) {
			return plan
		}
	}
	return JobPlan{}
}

func (f *FakeVideo) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/simulations":
		f.submit(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/simulations/"):
		f.status(w, strings.TrimPrefix(r.URL.Path, "/simulations/"))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/recordings/"):
		f.recording(w, strings.TrimPrefix(r.URL.Path, "/recordings/"))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/files/"):
		f.file(w, strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/files/"), ".mp4"))
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (f *FakeVideo) submit(w http.ResponseWriter, r *http.Request) {
	var req video.SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Script) == 0 || req.Script[0].Start == nil {
		writeError(w, http.StatusBadRequest, "invalid script")
		return
	}
	prompt := req.Script[0].Start.Prompt
	f.events = append(f.events, "submit:"+prompt)

	plan := f.planFor(prompt)
	if plan.SubmitStatus != 0 {
		writeError(w, plan.SubmitStatus, "submit rejected")
		return
	}

	f.seq++
	job := &fakeJob{id: fmt.Sprintf("job_%d", f.seq), prompt: prompt, plan: plan}
	f.jobs[job.id] = job
	writeJSON(w, video.Job{JobID: job.id})
}

func (f *FakeVideo) status(w http.ResponseWriter, jobID string) {
	job, ok := f.jobs[jobID]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	job.polls++

	n := job.polls
	if n <= job.plan.NotFoundPolls {
		writeError(w, http.StatusNotFound, "job not visible yet")
		return
	}
	n -= job.plan.NotFoundPolls
	if n <= job.plan.TransientErrors {
		writeError(w, http.StatusServiceUnavailable, "try again")
		return
	}

	resp := video.JobStatus{JobID: job.id, Status: video.JobStatusRunning}
	if job.plan.Hang || n-job.plan.TransientErrors <= job.plan.PollsBeforeTerminal {
		writeJSON(w, resp)
		return
	}

	resp.Status = job.plan.FinalStatus
	if resp.Status == "" {
		resp.Status = video.JobStatusCompleted
	}
	if resp.Status == video.JobStatusFailed {
		resp.ErrorMessage = "render failed"
	}
	if resp.Status == video.JobStatusCompleted && !job.plan.NoStreams {
		n := job.plan.Streams
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			streamID := fmt.Sprintf("%s_s%d", job.id, i)
			f.streams[streamID] = job
			resp.Streams = append(resp.Streams, video.Stream{StreamID: streamID})
		}
	}
	f.events = append(f.events, "terminal:"+job.id)
	writeJSON(w, resp)
}

func (f *FakeVideo) recording(w http.ResponseWriter, streamID string) {
	if _, ok := f.streams[streamID]; !ok {
		writeError(w, http.StatusNotFound, "unknown stream")
		return
	}
	writeJSON(w, video.Recording{
		StreamID: streamID,
		VideoURL: f.Server.URL + "/files/" + streamID + ".mp4",
	})
}

func (f *FakeVideo) file(w http.ResponseWriter, streamID string) {
	job, ok := f.streams[streamID]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown file")
		return
	}
	f.events = append(f.events, "fetch:"+job.id)
	if job.plan.DownloadStatus != 0 {
		w.WriteHeader(job.plan.DownloadStatus)
		return
	}
	payload := job.plan.Payload
	if payload == nil {
		payload = []byte("video:" + streamID)
	}
	w.Header().Set("Content-Type", "video/mp4")
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":{"type":"test","message":%q}}`, msg)
}
