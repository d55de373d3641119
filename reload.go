package proxy

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces bursts of filesystem events (e.g. an editor's
// write-temp-then-rename) into a single reload.
const reloadDebounce = 250 * time.Millisecond

// WatchAndReload subscribes to filesystem events on path's parent directory
// — not path itself, so that editors which replace the file via atomic
// rename are still observed — and debounces bursts within reloadDebounce.
// On each settled burst it reloads path and, on success, installs the new
// snapshot into cell and logs it; on failure it logs and leaves the
// current snapshot untouched. It returns when ctx is cancelled.
func WatchAndReload(ctx context.Context, path string, cell *Cell) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	name := filepath.Base(path)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(reloadDebounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			snap, err := Load(path)
			if err != nil {
				Errorf("config reload from %s failed: %v", path, err)
				continue
			}
			cell.Store(snap)
			Infof("config reloaded from %s: %d profiles, %d rules", path, len(snap.Profiles), len(snap.Router.Rules))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			Warnf("config watcher error: %v", err)
		}
	}
}
