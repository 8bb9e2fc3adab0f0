package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/thrive-mt/imageapi/pkg/logging"
)

// reloadDebounce collapses the burst of events editors emit on save
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the config file whenever it changes and hands each valid
// result to onChange. Invalid edits are logged and ignored. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, filename string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(filename)
	// Watch the directory: editors and k8s configmaps replace the file
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Logger.Warn("Config watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			cfg, err := LoadConfig(target)
			if err != nil {
				logging.Logger.Warn("Ignoring invalid config change",
					zap.String("file", target),
					zap.Error(err))
				continue
			}
			logging.Logger.Info("Config reloaded", zap.String("file", target))
			onChange(cfg)
		}
	}
}
