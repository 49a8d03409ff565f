package controller

import (
	"errors"
	"fmt"
)

// 기본 에러 타입
var (
	// Run 관련 에러
	ErrRunNotFound  = errors.New("run not found")
	ErrEmptyBrief   = errors.New("brief is required")
	ErrStopped      = errors.New("controller is stopped")
	ErrRunCanceled  = errors.New("orchestration canceled")
	ErrRunPanicked  = errors.New("orchestration panicked")
	ErrInvalidState = errors.New("invalid state transition")

	// ErrExpansionFailed: 프롬프트 확장 실패. Run 전체가 failed가 됩니다.
	ErrExpansionFailed = errors.New("prompt expansion failed")

	// 에이전트 단위 에러. 해당 에이전트만 failed로 기록되고 다른 에이전트는 계속 진행합니다.
	ErrSubmitFailed    = errors.New("submit failed")
	ErrRemoteJobFailed = errors.New("remote job failed")
	ErrDownloadFailed  = errors.New("download failed")

	// ErrTransientPoll은 로그에만 남고 폴링은 계속됩니다.
	ErrTransientPoll = errors.New("transient poll error")

	// ErrInvalidCombine은 combine 입력이 부족할 때 반환됩니다.
	ErrInvalidCombine = errors.New("brief and all three agent prompts are required")

	// 최종 영상 작업 관련 에러
	ErrFinalJobNotFound = errors.New("final video job not found")
	ErrEmptyFinalPrompt = errors.New("prompt is required")
)

// 에이전트 작업 단계
const (
	OpSubmit   = "submit"
	OpPoll     = "poll"
	OpDownload = "download"
)

// AgentError는 한 에이전트에 국한된 실패를 래핑합니다.
type AgentError struct {
	Op   string // 단계 (submit, poll, download)
	Role Role
	Err  error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent[%s] %s: %v", e.Role, e.Op, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// newAgentError는 kind 센티널과 원인 에러를 함께 감싼 AgentError를 만듭니다.
func newAgentError(op string, role Role, kind, cause error) *AgentError {
	return &AgentError{
		Op:   op,
		Role: role,
		Err:  fmt.Errorf("%w: %w", kind, cause),
	}
}

// ExpansionError는 프롬프트 확장 실패입니다.
type ExpansionError struct {
	Err error
}

func (e *ExpansionError) Error() string {
	return fmt.Sprintf("%v: %v", ErrExpansionFailed, e.Err)
}

func (e *ExpansionError) Unwrap() []error {
	return []error{ErrExpansionFailed, e.Err}
}

// IsAgentScoped는 에러가 에이전트 하나에만 해당하는지 확인합니다.
func IsAgentScoped(err error) bool {
	var agentErr *AgentError
	return errors.As(err, &agentErr)
}
