package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thrive-mt/imageapi/pkg/logging"
)

const (
	fileCacheVersion  = "1.0"
	defaultSaveEvery  = 30 * time.Second
	fileCacheFileMode = 0644
)

// FileCache is a file-based implementation of the Cache interface with in-memory layer.
// Used for development to keep resolved URLs stable across server restarts.
type FileCache struct {
	*MemoryCache

	filePath string

	saveMu    sync.Mutex
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type fileCacheData struct {
	Entries map[string]*fileCacheEntry `json:"entries"`
	Version string                     `json:"version"`
}

type fileCacheEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// NewFileCache creates a new file-based cache with persistence
func NewFileCache(filePath string) (*FileCache, error) {
	return NewFileCacheWithIntervals(filePath, defaultCleanupInterval, defaultSaveEvery)
}

// NewFileCacheWithIntervals is NewFileCache with explicit sweep and save periods.
// A non-positive saveEvery only persists on Close.
func NewFileCacheWithIntervals(filePath string, cleanupEvery, saveEvery time.Duration) (*FileCache, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	fc := &FileCache{
		MemoryCache: NewMemoryCacheWithInterval(cleanupEvery),
		filePath:    filePath,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}

	if err := fc.load(); err != nil {
		logging.Logger.Warn("Failed to load cache from file, starting with empty cache",
			zap.String("file", filePath),
			zap.Error(err))
	}

	if saveEvery > 0 {
		go fc.periodicSave(saveEvery)
	} else {
		close(fc.done)
	}

	return fc, nil
}

// Clear drops all entries and truncates the snapshot on disk
func (fc *FileCache) Clear(ctx context.Context) error {
	if err := fc.MemoryCache.Clear(ctx); err != nil {
		return err
	}
	return fc.save()
}

// periodicSave saves the cache to disk on every tick
func (fc *FileCache) periodicSave(every time.Duration) {
	defer close(fc.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-fc.stopCh:
			return
		case <-ticker.C:
			if err := fc.save(); err != nil {
				logging.Logger.Warn("Failed to save cache to file",
					zap.String("file", fc.filePath),
					zap.Error(err))
			}
		}
	}
}

// load loads the cache from disk
func (fc *FileCache) load() error {
	data, err := os.ReadFile(fc.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist yet, that's ok
		}
		return err
	}

	var fileData fileCacheData
	if err := json.Unmarshal(data, &fileData); err != nil {
		return fmt.Errorf("failed to unmarshal cache file: %w", err)
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	now := time.Now()
	loaded := 0
	expired := 0

	for key, entry := range fileData.Entries {
		ent := &cacheEntry{value: entry.Value, expiresAt: entry.ExpiresAt}
		if ent.expired(now) {
			expired++
			continue
		}
		fc.data[key] = ent
		loaded++
	}

	logging.Logger.Info("Cache loaded from disk",
		zap.String("file", fc.filePath),
		zap.Int("loaded", loaded),
		zap.Int("expired", expired))

	return nil
}

// save writes the live entries to disk
func (fc *FileCache) save() error {
	fc.saveMu.Lock()
	defer fc.saveMu.Unlock()

	fileData := fileCacheData{
		Version: fileCacheVersion,
		Entries: make(map[string]*fileCacheEntry),
	}

	now := time.Now()

	fc.mu.RLock()
	for key, entry := range fc.data {
		if entry.expired(now) {
			continue
		}
		fileData.Entries[key] = &fileCacheEntry{
			Value:     entry.value,
			ExpiresAt: entry.expiresAt,
		}
	}
	fc.mu.RUnlock()

	data, err := json.MarshalIndent(fileData, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first, then rename (atomic operation)
	tempFile := fc.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, fileCacheFileMode); err != nil {
		return err
	}

	if err := os.Rename(tempFile, fc.filePath); err != nil {
		return err
	}

	logging.Logger.Debug("Cache saved to disk",
		zap.String("file", fc.filePath),
		zap.Int("entries", len(fileData.Entries)))

	return nil
}

// Close stops the background goroutines and saves the cache one final time
func (fc *FileCache) Close() error {
	fc.closeOnce.Do(func() {
		close(fc.stopCh)
	})
	<-fc.done
	if err := fc.MemoryCache.Close(); err != nil {
		return err
	}
	return fc.save()
}
