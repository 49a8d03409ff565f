package common

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the base data directory path.
// Priority:
// 1. GRIDION_DIR from config
// 2. $HOME/.gridion (default)
// 3. ./data (fallback if HOME is not set)
func GetDataDir() string {
	cfg := GetConfig()
	if cfg != nil && cfg.Directory.DataDir != "" {
		return cfg.Directory.DataDir
	}
	if homeDir := os.Getenv("HOME"); homeDir != "" {
		return filepath.Join(homeDir, ".gridion")
	}
	return "./data"
}

// GetVideosDir returns the directory holding per-run video folders.
// Default: {DataDir}/videos
func GetVideosDir() string {
	cfg := GetConfig()
	if cfg != nil && cfg.Directory.VideosDir != "" {
		return cfg.Directory.VideosDir
	}
	return filepath.Join(GetDataDir(), "videos")
}
