package storage

import "time"

// Run은 runs 테이블 레코드를 나타냅니다.
type Run struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID        string    `gorm:"column:run_id;type:varchar(64);not null;uniqueIndex:idx_runs_run_id"`
	Brief        string    `gorm:"column:brief;type:text;not null"`
	CampaignType string    `gorm:"column:campaign_type;type:varchar(32)"`
	Status       string    `gorm:"column:status;type:varchar(64);not null;index:idx_runs_status"`
	Error        string    `gorm:"column:error;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

// TableName은 gorm Tabler 인터페이스를 구현합니다.
func (Run) TableName() string {
	return "runs"
}

// RunAgent는 Run 안의 에이전트 하나(역할별 영상 작업)를 기록합니다.
type RunAgent struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID     string    `gorm:"column:run_id;type:varchar(64);not null;index:idx_run_agents_run;uniqueIndex:idx_run_agents_run_role,priority:1"`
	Role      string    `gorm:"column:role;type:varchar(32);not null;uniqueIndex:idx_run_agents_run_role,priority:2"`
	Position  int       `gorm:"column:position;type:int;not null"`
	Status    string    `gorm:"column:status;type:varchar(32);not null"`
	Prompt    string    `gorm:"column:prompt;type:text"`
	JobID     string    `gorm:"column:job_id;type:varchar(128)"`
	VideoPath string    `gorm:"column:video_path;type:text"`
	Digest    string    `gorm:"column:digest;type:varchar(64)"`
	SizeBytes int64     `gorm:"column:size_bytes"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

// TableName은 gorm Tabler 인터페이스를 구현합니다.
func (RunAgent) TableName() string {
	return "run_agents"
}
