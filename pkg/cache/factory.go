package cache

import (
	"os"

	"go.uber.org/zap"

	"github.com/thrive-mt/imageapi/pkg/logging"
)

// Backend names accepted by NewCache
const (
	BackendMemory  = "memory"
	BackendFile    = "file"
	BackendLevelDB = "leveldb"
)

// Options selects and tunes a cache backend
type Options struct {
	Backend string
	Path    string
}

// NewCache creates the appropriate cache for resolved image URLs.
// If IMAGE_CACHE_FILE_PATH env var is set, uses file-based cache (for dev)
// regardless of the configured backend. Any backend that fails to open
// falls back to the in-memory cache.
func NewCache(opts Options) Cache {
	if cacheFilePath := os.Getenv("IMAGE_CACHE_FILE_PATH"); cacheFilePath != "" {
		opts = Options{Backend: BackendFile, Path: cacheFilePath}
	}

	switch opts.Backend {
	case BackendFile:
		fileCache, err := NewFileCache(opts.Path)
		if err != nil {
			logging.Logger.Warn("Failed to create file-based image cache, falling back to memory cache",
				zap.String("path", opts.Path),
				zap.Error(err))
			return NewMemoryCache()
		}
		logging.Logger.Info("Initialized file-based image cache",
			zap.String("path", opts.Path))
		return fileCache
	case BackendLevelDB:
		ldb, err := NewLevelDBCache(opts.Path)
		if err != nil {
			logging.Logger.Warn("Failed to open leveldb image cache, falling back to memory cache",
				zap.String("path", opts.Path),
				zap.Error(err))
			return NewMemoryCache()
		}
		logging.Logger.Info("Initialized leveldb image cache",
			zap.String("path", opts.Path))
		return ldb
	}

	logging.Logger.Info("Initialized in-memory image cache")
	return NewMemoryCache()
}
