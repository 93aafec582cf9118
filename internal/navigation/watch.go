// Copyright (c) 2026 DLMS. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package navigation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events a single save produces.
const reloadDebounce = 200 * time.Millisecond

/*
Watch reloads the route table at path into table whenever the file changes,
until ctx is cancelled.

Description: The parent directory is watched rather than the file, because
editors and config managers replace files by rename. A file that fails to
parse or validate is logged and ignored; the previous routes stay active.

Parameters:
  - path: The YAML route table that table was loaded from
  - table: The live table shared by every guard

Returns:
  - error: The watcher could not be started
*/
func Watch(ctx context.Context, path string, table *Table, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("navigation_watch_start_failed: %w", err)
	}

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("navigation_watch_add_failed: %w", err)
	}

	go func() {
		defer watcher.Close()

		// Stopped until the first relevant event arms it.
		debounce := time.NewTimer(time.Hour)
		debounce.Stop()
		defer debounce.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				debounce.Reset(reloadDebounce)

			case <-debounce.C:
				next, err := LoadTable(target)
				if err != nil {
					logger.Error("route_table_reload_rejected", slog.String("path", target), slog.Any("error", err))
					continue
				}
				table.Swap(next)
				logger.Info("route_table_reloaded", slog.String("path", target), slog.Int("routes", len(next.Routes())))

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("route_table_watch_error", slog.Any("error", err))
			}
		}
	}()

	return nil
}
