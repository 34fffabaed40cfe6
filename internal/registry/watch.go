// internal/registry/watch.go
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses the burst of events editors emit for one save.
const watchDebounce = 200 * time.Millisecond

// Watch re-applies the model file at path whenever it changes, until ctx is done.
// The parent directory is watched so files replaced by rename are still seen.
// onApply, when set, is called after every reload attempt with its result.
func (r *Registry) Watch(ctx context.Context, path string, onApply func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	customLog.Printf("Registry: Watching %s for model changes", abs)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(watchDebounce)
			}
		case <-pending:
			pending = nil
			customLog.Printf("Registry: %s changed, reloading models...", abs)
			err := r.LoadFile(ctx, abs)
			if err != nil {
				customLog.Warnf("Registry: Reload of %s failed, keeping previous models: %v", abs, err)
			}
			if onApply != nil {
				onApply(err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			customLog.Warnf("Registry: Watcher error: %v", err)
		}
	}
}
