package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository는 Run 이력을 위한 영속성 헬퍼를 제공합니다.
type Repository struct {
	db *gorm.DB
}

// NewRepository는 전달된 gorm DB를 이용해 Repository를 생성합니다.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("storage: repository requires a non-nil db handle")
	}
	return &Repository{db: db}, nil
}

// DB는 내부 gorm DB 참조를 반환합니다.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// UpsertRun은 runID로 Run 레코드를 만들거나 상태를 갱신합니다.
func (r *Repository) UpsertRun(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("storage: nil run payload")
	}
	if run.RunID == "" {
		return fmt.Errorf("storage: empty runID")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "error", "updated_at"}),
		}).
		Create(run).Error
}

// UpsertRunAgent는 (run_id, role) 기준으로 에이전트 레코드를 만들거나 갱신합니다.
func (r *Repository) UpsertRunAgent(ctx context.Context, agent *RunAgent) error {
	if agent == nil {
		return fmt.Errorf("storage: nil run agent payload")
	}
	if agent.RunID == "" || agent.Role == "" {
		return fmt.Errorf("storage: run agent requires runID and role")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "run_id"}, {Name: "role"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "prompt", "job_id", "video_path", "digest", "size_bytes", "updated_at",
			}),
		}).
		Create(agent).Error
}

// SaveRunSnapshot은 Run과 에이전트 레코드를 하나의 트랜잭션으로 저장합니다.
func (r *Repository) SaveRunSnapshot(ctx context.Context, run *Run, agents []RunAgent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &Repository{db: tx}
		if err := txRepo.UpsertRun(ctx, run); err != nil {
			return err
		}
		for i := range agents {
			if err := txRepo.UpsertRunAgent(ctx, &agents[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRun은 식별자로 Run을 조회합니다.
func (r *Repository) GetRun(ctx context.Context, runID string) (*Run, error) {
	if runID == "" {
		return nil, fmt.Errorf("storage: empty runID")
	}
	var run Run
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns는 상태 필터를 적용해 최신순으로 Run 목록을 반환합니다.
func (r *Repository) ListRuns(ctx context.Context, limit int, statuses ...string) ([]Run, error) {
	q := r.db.WithContext(ctx).Model(&Run{})
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []Run
	if err := q.Order("created_at DESC").Order("id DESC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// ListRunAgents는 Run의 에이전트 레코드를 처리 순서대로 반환합니다.
func (r *Repository) ListRunAgents(ctx context.Context, runID string) ([]RunAgent, error) {
	if runID == "" {
		return nil, fmt.Errorf("storage: empty runID")
	}
	var agents []RunAgent
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("position ASC").
		Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

// MarkInterruptedRuns는 이전 프로세스에서 끝나지 못한 Run을 failed로 표시합니다.
// 백그라운드 작업은 프로세스와 함께 사라지므로 재시작 시 호출합니다.
func (r *Repository) MarkInterruptedRuns(ctx context.Context, reason string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Run{}).
		Where("status NOT IN ?", []string{RunStatusComplete, RunStatusFailed}).
		Updates(map[string]interface{}{
			"status":     RunStatusFailed,
			"error":      reason,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// DeleteRun은 Run과 에이전트 레코드를 삭제합니다.
func (r *Repository) DeleteRun(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("storage: empty runID")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&RunAgent{}).Error; err != nil {
			return err
		}
		return tx.Where("run_id = ?", runID).Delete(&Run{}).Error
	})
}
