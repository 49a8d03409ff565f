package artifact

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
	"go.uber.org/zap/zaptest"
)

func TestStore_Save(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, zaptest.NewLogger(t))

	a, err := store.Save(context.Background(), "run_1", "kinetic.mp4", strings.NewReader("video"))
	require.NoError(t, err)

	sum := blake3.Sum256([]byte("video"))
	assert.Equal(t, filepath.Join(root, "run_1", "kinetic.mp4"), a.Path)
	assert.Equal(t, "/api/videos/run_1/kinetic.mp4", a.PublicPath)
	assert.Equal(t, int64(5), a.Size)
	assert.Equal(t, hex.EncodeToString(sum[:]), a.Digest)

	data, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))

	// 임시 파일이 남지 않아야 함
	entries, err := os.ReadDir(filepath.Join(root, "run_1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_SaveEmpty(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, nil)

	_, err := store.Save(context.Background(), "run_1", "kinetic.mp4", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyArtifact)

	entries, err := os.ReadDir(filepath.Join(root, "run_1"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_SaveCanceled(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Save(ctx, "run_1", "kinetic.mp4", strings.NewReader("video"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_InvalidNames(t *testing.T) {
	store := NewStore(t.TempDir(), nil)

	for _, name := range []string{"", "..", "../x", `a\b`, ".hidden"} {
		_, err := store.Save(context.Background(), name, "kinetic.mp4", strings.NewReader("v"))
		assert.ErrorIs(t, err, ErrInvalidName, name)

		_, err = store.Open("run_1", name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestStore_OpenAndRemove(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	_, err := store.Save(context.Background(), "run_1", "classical.mp4", strings.NewReader("abc"))
	require.NoError(t, err)

	f, err := store.Open("run_1", "classical.mp4")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, store.RemoveRun("run_1"))
	_, err = store.Open("run_1", "classical.mp4")
	assert.True(t, os.IsNotExist(err))

	// 없는 run 삭제는 에러가 아님
	assert.NoError(t, store.RemoveRun("run_2"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "kinetic.mp4", FileName("kinetic", 0))
	assert.Equal(t, "kinetic-2.mp4", FileName("kinetic", 1))
	assert.Equal(t, "kinetic-3.mp4", FileName("kinetic", 2))
}
