// Package artifact persists downloaded recordings under a per-run directory
// and exposes them by a stable public path.
package artifact

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// PublicPrefix is the URL prefix under which artifacts are served.
const PublicPrefix = "/api/videos"

var (
	// ErrInvalidName은 run ID나 파일 이름이 경로 구분자 등을 포함할 때 반환됩니다.
	ErrInvalidName = errors.New("artifact: invalid name")
	// ErrEmptyArtifact는 0바이트 다운로드입니다.
	ErrEmptyArtifact = errors.New("artifact: empty payload")
)

// Artifact는 저장된 녹화본 정보입니다.
type Artifact struct {
	Path       string // 로컬 파일 경로
	PublicPath string // /api/videos/<run-id>/<file>
	Size       int64
	Digest     string // BLAKE3 hex
}

// Store는 run별 디렉터리에 녹화본을 저장합니다.
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore는 root 아래에 저장하는 Store를 생성합니다.
func NewStore(root string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{root: root, logger: logger}
}

// Root returns the base directory.
func (s *Store) Root() string {
	return s.root
}

// FileName returns the file name for the n-th (zero based) artifact of a role.
// The first artifact is <role>.mp4, later ones <role>-<n+1>.mp4.
func FileName(role string, index int) string {
	if index == 0 {
		return role + ".mp4"
	}
	return fmt.Sprintf("%s-%d.mp4", role, index+1)
}

// PublicPath returns the externally addressable path of a stored file.
func PublicPath(runID, file string) string {
	return path.Join(PublicPrefix, runID, file)
}

// Save streams r into <root>/<runID>/<file> atomically and returns its digest.
// A partially written file never becomes visible under the final name.
func (s *Store) Save(ctx context.Context, runID, file string, r io.Reader) (*Artifact, error) {
	if err := validName(runID); err != nil {
		return nil, err
	}
	if err := validName(file); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".gridion-tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	hasher := blake3.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), &ctxReader{ctx: ctx, r: r})
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return nil, fmt.Errorf("write %s: %w", file, err)
	}
	if size == 0 {
		_ = tmp.Close()
		cleanup()
		return nil, fmt.Errorf("%s: %w", file, ErrEmptyArtifact)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("close temp file for %s: %w", file, err)
	}

	dest := filepath.Join(dir, file)
	if err := os.Rename(tmpPath, dest); err != nil {
		cleanup()
		return nil, fmt.Errorf("atomic rename for %s: %w", dest, err)
	}
	if err := os.Chmod(dest, 0o644); err != nil {
		return nil, fmt.Errorf("chmod %s: %w", dest, err)
	}

	a := &Artifact{
		Path:       dest,
		PublicPath: PublicPath(runID, file),
		Size:       size,
		Digest:     hex.EncodeToString(hasher.Sum(nil)),
	}
	s.logger.Debug("artifact saved",
		zap.String("run_id", runID),
		zap.String("file", file),
		zap.Int64("size", size),
		zap.String("digest", a.Digest),
	)
	return a, nil
}

// Open opens a stored artifact for reading.
func (s *Store) Open(runID, file string) (*os.File, error) {
	if err := validName(runID); err != nil {
		return nil, err
	}
	if err := validName(file); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.root, runID, file))
}

// RemoveRun은 run 디렉터리 전체를 삭제합니다. 없으면 무시합니다.
func (s *Store) RemoveRun(runID string) error {
	if err := validName(runID); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, runID)); err != nil {
		return fmt.Errorf("remove run dir: %w", err)
	}
	return nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ctxReader stops a long copy once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
