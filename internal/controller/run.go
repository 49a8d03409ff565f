package controller

import (
	"fmt"
	"time"

	"github.com/cnap-oss/gridion/internal/storage"
)

// Role은 에이전트의 고정된 창작 역할입니다.
type Role string

const (
	RoleKinetic       Role = "kinetic"
	RoleContemplative Role = "contemplative"
	RoleClassical     Role = "classical"
)

// Roles is the processing order of every Run.
var Roles = []Role{RoleKinetic, RoleContemplative, RoleClassical}

// ParseRole은 문자열을 Role로 변환합니다.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Run status values. processing_<role> is built by ProcessingStatus.
const (
	RunStatusGeneratingPrompts = storage.RunStatusGeneratingPrompts
	RunStatusComplete          = storage.RunStatusComplete
	RunStatusFailed            = storage.RunStatusFailed
)

// Agent status values.
const (
	AgentStatusWaiting     = storage.AgentStatusWaiting
	AgentStatusSubmitting  = storage.AgentStatusSubmitting
	AgentStatusProcessing  = storage.AgentStatusProcessing
	AgentStatusDownloading = storage.AgentStatusDownloading
	AgentStatusDone        = storage.AgentStatusDone
	AgentStatusFailed      = storage.AgentStatusFailed
)

// ProcessingStatus returns the Run status for the turn of role.
func ProcessingStatus(role Role) string {
	return "processing_" + string(role)
}

// agentTransitions는 허용된 에이전트 상태 전이입니다.
var agentTransitions = map[string][]string{
	AgentStatusWaiting:     {AgentStatusSubmitting},
	AgentStatusSubmitting:  {AgentStatusProcessing, AgentStatusFailed},
	AgentStatusProcessing:  {AgentStatusDownloading, AgentStatusFailed},
	AgentStatusDownloading: {AgentStatusDone, AgentStatusFailed},
}

// IsAgentTerminal reports whether no further transition is allowed.
func IsAgentTerminal(status string) bool {
	return status == AgentStatusDone || status == AgentStatusFailed
}

// IsRunTerminal reports whether the Run will not change again.
func IsRunTerminal(status string) bool {
	return status == RunStatusComplete || status == RunStatusFailed
}

// Agent는 Run 안의 에이전트 하나입니다. Run을 소유한 goroutine만 수정합니다.
type Agent struct {
	Role      Role
	Status    string
	Prompt    string
	VideoPath string

	// 이력 기록용
	JobID     string
	Digest    string
	SizeBytes int64
}

// Run은 오케스트레이션 goroutine 하나가 소유하는 가변 레코드입니다.
// 외부 관찰자는 RunSnapshot만 봅니다.
type Run struct {
	ID           string
	Brief        string
	CampaignType string
	Status       string
	Error        string
	Agents       []*Agent
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// newRun은 모든 에이전트가 waiting인 Run을 생성합니다.
func newRun(id, brief, campaignType string, now time.Time) *Run {
	agents := make([]*Agent, 0, len(Roles))
	for _, role := range Roles {
		agents = append(agents, &Agent{Role: role, Status: AgentStatusWaiting})
	}
	return &Run{
		ID:           id,
		Brief:        brief,
		CampaignType: campaignType,
		Status:       RunStatusGeneratingPrompts,
		Agents:       agents,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// agent는 역할에 해당하는 에이전트를 반환합니다.
func (r *Run) agent(role Role) *Agent {
	for _, a := range r.Agents {
		if a.Role == role {
			return a
		}
	}
	return nil
}

// inFlight returns the agent currently between waiting and a terminal state.
func (r *Run) inFlight() *Agent {
	for _, a := range r.Agents {
		if a.Status != AgentStatusWaiting && !IsAgentTerminal(a.Status) {
			return a
		}
	}
	return nil
}

// bindPrompts sets every agent prompt at once. Prompts are write-once.
func (r *Run) bindPrompts(prompts map[Role]string) error {
	for _, a := range r.Agents {
		if a.Prompt != "" {
			return fmt.Errorf("%w: prompt of %s already bound", ErrInvalidState, a.Role)
		}
		if prompts[a.Role] == "" {
			return fmt.Errorf("%w: no prompt for %s", ErrInvalidState, a.Role)
		}
	}
	for _, a := range r.Agents {
		a.Prompt = prompts[a.Role]
	}
	return nil
}

// setAgentStatus advances one agent along its state machine.
func (r *Run) setAgentStatus(a *Agent, to string) error {
	for _, next := range agentTransitions[a.Status] {
		if next == to {
			a.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: agent %s %s -> %s", ErrInvalidState, a.Role, a.Status, to)
}

// setStatus advances the Run status. Terminal states never change again.
func (r *Run) setStatus(to string) error {
	if IsRunTerminal(r.Status) {
		return fmt.Errorf("%w: run %s is already %s", ErrInvalidState, r.ID, r.Status)
	}
	if to == RunStatusComplete {
		for _, a := range r.Agents {
			if !IsAgentTerminal(a.Status) {
				return fmt.Errorf("%w: agent %s is %s", ErrInvalidState, a.Role, a.Status)
			}
		}
	}
	r.Status = to
	return nil
}

// Snapshot은 Run의 불변 복사본을 만듭니다.
func (r *Run) Snapshot() *RunSnapshot {
	snap := &RunSnapshot{
		ID:           r.ID,
		Brief:        r.Brief,
		CampaignType: r.CampaignType,
		Status:       r.Status,
		Error:        optional(r.Error),
		Agents:       make([]AgentSnapshot, 0, len(r.Agents)),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	for _, a := range r.Agents {
		snap.Agents = append(snap.Agents, AgentSnapshot{
			Role:      string(a.Role),
			Status:    a.Status,
			Prompt:    optional(a.Prompt),
			VideoPath: optional(a.VideoPath),
		})
	}
	return snap
}

// RunSnapshot is the read-only view of a Run served to pollers. A published
// snapshot is never modified.
type RunSnapshot struct {
	ID           string          `json:"id"`
	Brief        string          `json:"-"`
	CampaignType string          `json:"-"`
	Status       string          `json:"status"`
	Error        *string         `json:"error"`
	Agents       []AgentSnapshot `json:"agents"`
	CreatedAt    time.Time       `json:"-"`
	UpdatedAt    time.Time       `json:"-"`
}

// AgentSnapshot은 에이전트의 읽기 전용 상태입니다.
type AgentSnapshot struct {
	Role      string  `json:"role"`
	Status    string  `json:"status"`
	Prompt    *string `json:"prompt"`
	VideoPath *string `json:"videoPath"`
}

// Terminal reports whether the snapshot describes a finished Run.
func (s *RunSnapshot) Terminal() bool {
	return IsRunTerminal(s.Status)
}

// Agent returns the snapshot of role, or nil.
func (s *RunSnapshot) Agent(role Role) *AgentSnapshot {
	for i := range s.Agents {
		if s.Agents[i].Role == string(role) {
			return &s.Agents[i]
		}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
