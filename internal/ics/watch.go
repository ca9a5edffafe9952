package ics

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "calsync/internal/log"
)

// DefaultDebounce collapses the burst of events an editor or a download
// produces for one logical change.
const DefaultDebounce = 2 * time.Second

// WatchFile calls onChange after path is written, created or renamed into
// place, at most once per debounce window. It blocks until ctx is done.
//
// The parent directory is watched rather than the file so that atomic
// replacements (write temp, rename) keep being observed.
func WatchFile(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	appLog.Info("watching feed file", "path", abs)

	var (
		timer  *time.Timer
		fire   <-chan time.Time
		wanted = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Op.Has(wanted) {
				continue
			}
			appLog.Debug("feed file changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Warn("feed watcher error", "error", err.Error())
		}
	}
}
