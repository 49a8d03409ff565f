package controller

import (
	"sync/atomic"
	"time"
)

// Metrics는 오케스트레이션 메트릭을 수집합니다.
type Metrics struct {
	// Run 메트릭
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64

	// Agent 메트릭
	AgentsDone   int64
	AgentsFailed int64

	// 타이밍 메트릭
	TotalRunTime int64 // 나노초
	RunsFinished int64

	// 원격 서비스 메트릭
	PollErrors      int64
	BytesDownloaded int64
}

// RecordRunStarted는 시작된 Run 수를 증가시킵니다.
func (m *Metrics) RecordRunStarted() {
	atomic.AddInt64(&m.RunsStarted, 1)
}

// RecordRunFinished는 Run 종료를 기록합니다.
func (m *Metrics) RecordRunFinished(status string, duration time.Duration) {
	atomic.AddInt64(&m.RunsFinished, 1)
	atomic.AddInt64(&m.TotalRunTime, int64(duration))

	if status == RunStatusComplete {
		atomic.AddInt64(&m.RunsCompleted, 1)
	} else {
		atomic.AddInt64(&m.RunsFailed, 1)
	}
}

// RecordAgent는 에이전트 종료 상태를 기록합니다.
func (m *Metrics) RecordAgent(done bool) {
	if done {
		atomic.AddInt64(&m.AgentsDone, 1)
	} else {
		atomic.AddInt64(&m.AgentsFailed, 1)
	}
}

// RecordPollError는 일시적 폴링 에러를 기록합니다.
func (m *Metrics) RecordPollError() {
	atomic.AddInt64(&m.PollErrors, 1)
}

// RecordDownload는 다운로드한 바이트 수를 더합니다.
func (m *Metrics) RecordDownload(n int64) {
	atomic.AddInt64(&m.BytesDownloaded, n)
}

// GetSnapshot은 현재 메트릭 스냅샷을 반환합니다.
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		RunsStarted:     atomic.LoadInt64(&m.RunsStarted),
		RunsCompleted:   atomic.LoadInt64(&m.RunsCompleted),
		RunsFailed:      atomic.LoadInt64(&m.RunsFailed),
		AgentsDone:      atomic.LoadInt64(&m.AgentsDone),
		AgentsFailed:    atomic.LoadInt64(&m.AgentsFailed),
		AvgRunTimeMs:    m.calculateAvgRunTime(),
		PollErrors:      atomic.LoadInt64(&m.PollErrors),
		BytesDownloaded: atomic.LoadInt64(&m.BytesDownloaded),
	}
}

// Reset은 모든 메트릭을 초기화합니다.
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.RunsStarted, 0)
	atomic.StoreInt64(&m.RunsCompleted, 0)
	atomic.StoreInt64(&m.RunsFailed, 0)
	atomic.StoreInt64(&m.AgentsDone, 0)
	atomic.StoreInt64(&m.AgentsFailed, 0)
	atomic.StoreInt64(&m.TotalRunTime, 0)
	atomic.StoreInt64(&m.RunsFinished, 0)
	atomic.StoreInt64(&m.PollErrors, 0)
	atomic.StoreInt64(&m.BytesDownloaded, 0)
}

func (m *Metrics) calculateAvgRunTime() float64 {
	finished := atomic.LoadInt64(&m.RunsFinished)
	if finished == 0 {
		return 0
	}
	totalNs := atomic.LoadInt64(&m.TotalRunTime)
	return float64(totalNs) / float64(finished) / 1e6 // 나노초 -> 밀리초
}

// MetricsSnapshot은 메트릭 스냅샷입니다.
type MetricsSnapshot struct {
	RunsStarted     int64   `json:"runs_started"`
	RunsCompleted   int64   `json:"runs_completed"`
	RunsFailed      int64   `json:"runs_failed"`
	AgentsDone      int64   `json:"agents_done"`
	AgentsFailed    int64   `json:"agents_failed"`
	AvgRunTimeMs    float64 `json:"avg_run_time_ms"`
	PollErrors      int64   `json:"poll_errors"`
	BytesDownloaded int64   `json:"bytes_downloaded"`
}
