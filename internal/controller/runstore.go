package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// runEntry는 RunStore의 항목입니다. 최신 스냅샷을 atomic하게 게시하므로
// 읽기는 writer를 기다리지 않습니다.
type runEntry struct {
	id     string
	snap   atomic.Pointer[RunSnapshot]
	cancel context.CancelFunc
	// finishedAt은 종료 시각(UnixNano)입니다. 0이면 진행 중.
	finishedAt atomic.Int64
}

func (e *runEntry) publish(snap *RunSnapshot) {
	e.snap.Store(snap)
	if snap.Terminal() {
		e.finishedAt.CompareAndSwap(0, snap.UpdatedAt.UnixNano())
	}
}

// RunStore는 run ID -> Run 상태의 프로세스 전역 저장소입니다.
// Run마다 writer는 하나, reader는 제한 없음.
type RunStore struct {
	runs map[string]*runEntry
	mu   sync.RWMutex
}

// NewRunStore는 빈 RunStore를 생성합니다.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*runEntry)}
}

// create registers a new Run. IDs are never reused.
func (s *RunStore) create(run *Run, cancel context.CancelFunc) (*runEntry, error) {
	e := &runEntry{id: run.ID, cancel: cancel}
	e.publish(run.Snapshot())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return nil, fmt.Errorf("controller: run %s already exists", run.ID)
	}
	s.runs[run.ID] = e
	return e, nil
}

func (s *RunStore) entry(runID string) (*runEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.runs[runID]
	return e, ok
}

// Get은 Run의 최신 스냅샷을 반환합니다.
func (s *RunStore) Get(runID string) (*RunSnapshot, bool) {
	e, ok := s.entry(runID)
	if !ok {
		return nil, false
	}
	return e.snap.Load(), true
}

// List는 생성 순서(오래된 것 먼저)로 스냅샷을 반환합니다.
func (s *RunStore) List() []*RunSnapshot {
	s.mu.RLock()
	snaps := make([]*RunSnapshot, 0, len(s.runs))
	for _, e := range s.runs {
		snaps = append(snaps, e.snap.Load())
	}
	s.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	return snaps
}

// Len returns the number of stored Runs.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// cancelAll은 진행 중인 모든 Run의 context를 취소합니다.
func (s *RunStore) cancelAll() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.runs {
		if e.finishedAt.Load() == 0 {
			e.cancel()
			n++
		}
	}
	return n
}

// evictFinishedBefore는 cutoff 이전에 종료된 Run을 제거하고 ID를 반환합니다.
func (s *RunStore) evictFinishedBefore(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, e := range s.runs {
		fin := e.finishedAt.Load()
		if fin != 0 && fin < cutoff.UnixNano() {
			delete(s.runs, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}
