package video

// Remote job states reported by GetStatus.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// PromptAction은 스크립트 단계의 프롬프트입니다.
type PromptAction struct {
	Prompt string `json:"prompt"`
}

// EndAction은 시뮬레이션 종료 단계입니다. 항상 빈 객체로 직렬화됩니다.
type EndAction struct{}

// ScriptStep은 시뮬레이션 스크립트의 한 단계입니다. start/interact/end 중 하나만 설정합니다.
type ScriptStep struct {
	TimestampMS int64         `json:"timestamp_ms"`
	Start       *PromptAction `json:"start,omitempty"`
	Interact    *PromptAction `json:"interact,omitempty"`
	End         *EndAction    `json:"end,omitempty"`
}

// SimulateRequest는 작업 제출 요청입니다.
type SimulateRequest struct {
	Script   []ScriptStep `json:"script"`
	Portrait bool         `json:"portrait"`
}

// Job은 제출된 원격 작업입니다.
type Job struct {
	JobID string `json:"job_id"`
}

// Stream은 완료된 작업의 출력 스트림 참조입니다.
type Stream struct {
	StreamID string `json:"stream_id"`
}

// JobStatus는 작업 상태 조회 응답입니다.
type JobStatus struct {
	JobID        string   `json:"job_id"`
	Status       string   `json:"status"`
	Streams      []Stream `json:"streams,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// Terminal reports whether the remote job will not change state again.
func (s *JobStatus) Terminal() bool {
	switch s.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Recording은 스트림의 녹화본 위치입니다.
type Recording struct {
	StreamID string `json:"stream_id"`
	VideoURL string `json:"video_url"`
}

// errorBody는 서비스의 에러 응답 형식입니다.
type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewScript builds the fixed three-step script: open on prompt, re-assert
// it at the three second mark, end at nine seconds.
func NewScript(prompt string) []ScriptStep {
	return []ScriptStep{
		{TimestampMS: 0, Start: &PromptAction{Prompt: prompt}},
		{TimestampMS: 3000, Interact: &PromptAction{Prompt: prompt}},
		{TimestampMS: 9000, End: &EndAction{}},
	}
}
