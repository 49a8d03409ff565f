package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cnap-oss/gridion/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepository(t *testing.T) *storage.Repository {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, storage.AutoMigrate(db))
	t.Cleanup(func() { require.NoError(t, storage.Close(db)) })

	repo, err := storage.NewRepository(db)
	require.NoError(t, err)
	return repo
}

func TestNewRepositoryRequiresDB(t *testing.T) {
	_, err := storage.NewRepository(nil)
	require.Error(t, err)
}

func TestRepositorySaveRunSnapshot(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	run := &storage.Run{RunID: "run_1", Brief: "sneakers", CampaignType: "product-launch", Status: storage.RunStatusGeneratingPrompts}
	agents := []storage.RunAgent{
		{RunID: "run_1", Role: "kinetic", Position: 0, Status: storage.AgentStatusWaiting},
		{RunID: "run_1", Role: "contemplative", Position: 1, Status: storage.AgentStatusWaiting},
		{RunID: "run_1", Role: "classical", Position: 2, Status: storage.AgentStatusWaiting},
	}
	require.NoError(t, repo.SaveRunSnapshot(ctx, run, agents))

	// 두 번째 저장은 상태만 갱신해야 함
	run2 := &storage.Run{RunID: "run_1", Brief: "sneakers", Status: storage.RunStatusComplete}
	agents[0].Status = storage.AgentStatusDone
	agents[0].VideoPath = "/api/videos/run_1/kinetic.mp4"
	agents[0].Prompt = "fast"
	require.NoError(t, repo.SaveRunSnapshot(ctx, run2, agents[:1]))

	got, err := repo.GetRun(ctx, "run_1")
	require.NoError(t, err)
	require.Equal(t, storage.RunStatusComplete, got.Status)
	require.Equal(t, "product-launch", got.CampaignType)

	stored, err := repo.ListRunAgents(ctx, "run_1")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	require.Equal(t, "kinetic", stored[0].Role)
	require.Equal(t, storage.AgentStatusDone, stored[0].Status)
	require.Equal(t, "/api/videos/run_1/kinetic.mp4", stored[0].VideoPath)
	require.Equal(t, "contemplative", stored[1].Role)
	require.Equal(t, storage.AgentStatusWaiting, stored[1].Status)
}

func TestRepositoryListRunsAndMarkInterrupted(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertRun(ctx, &storage.Run{RunID: "run_a", Brief: "a", Status: storage.RunStatusComplete}))
	require.NoError(t, repo.UpsertRun(ctx, &storage.Run{RunID: "run_b", Brief: "b", Status: "processing_kinetic"}))

	all, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	n, err := repo.MarkInterruptedRuns(ctx, "process restarted")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	failed, err := repo.ListRuns(ctx, 10, storage.RunStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "run_b", failed[0].RunID)
	require.Equal(t, "process restarted", failed[0].Error)
}

func TestRepositoryDeleteRun(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertRun(ctx, &storage.Run{RunID: "run_x", Brief: "x", Status: storage.RunStatusComplete}))
	require.NoError(t, repo.UpsertRunAgent(ctx, &storage.RunAgent{RunID: "run_x", Role: "kinetic", Status: storage.AgentStatusDone}))
	require.NoError(t, repo.DeleteRun(ctx, "run_x"))

	_, err := repo.GetRun(ctx, "run_x")
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	agents, err := repo.ListRunAgents(ctx, "run_x")
	require.NoError(t, err)
	require.Empty(t, agents)
}

func TestRepositoryValidation(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"nil run", func() error { return repo.UpsertRun(ctx, nil) }},
		{"empty run id", func() error { return repo.UpsertRun(ctx, &storage.Run{}) }},
		{"nil agent", func() error { return repo.UpsertRunAgent(ctx, nil) }},
		{"agent without role", func() error { return repo.UpsertRunAgent(ctx, &storage.RunAgent{RunID: "r"}) }},
		{"get empty", func() error { _, err := repo.GetRun(ctx, ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.call())
		})
	}
}
