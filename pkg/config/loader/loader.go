package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/asimihsan/advisory_engine/internal/config"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

// Snapshot represents a cached configuration with metadata
type snapshot struct {
	cfg   *config.AppConfig
	path  string
	sha   string    // SHA-256 hash of the file content
	mtime time.Time // Last modification time
}

// Cached configuration for atomic access
var cachedConfig atomic.Value // *snapshot

// loadPkl is swapped in tests, which cannot assume a pkl binary.
var loadPkl = config.LoadFromPath

// LoadFromPathWithSHA loads and caches a PKL configuration file and returns the config along with its SHA
func LoadFromPathWithSHA(ctx context.Context, path string) (*config.AppConfig, string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: resolving %s: %v", advisory.ErrConfigLoad, path, err)
	}

	fileInfo, err := os.Stat(absPath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", advisory.ErrConfigLoad, err)
	}

	if cached, ok := cachedConfig.Load().(*snapshot); ok && cached != nil {
		if cached.path == absPath && cached.mtime.Equal(fileInfo.ModTime()) {
			return cached.cfg, cached.sha, nil
		}
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", advisory.ErrConfigLoad, err)
	}
	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	cfg, err := loadPkl(ctx, absPath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: evaluating %s: %v", advisory.ErrConfigLoad, path, err)
	}

	cachedConfig.Store(&snapshot{
		cfg:   cfg,
		path:  absPath,
		sha:   hashStr,
		mtime: fileInfo.ModTime(),
	})
	return cfg, hashStr, nil
}
