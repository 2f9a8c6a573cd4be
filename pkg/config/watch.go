package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// WatchAndReload watches path for writes and reloads the Store each time
// the file changes, so a config edit takes effect for the next session
// without a process restart. Errors from a failed reload are swallowed
// here (the prior Document stays active); callers that want reload
// failures surfaced should call Load themselves on a channel signal
// instead.
func WatchAndReload(ctx context.Context, path string, store *Store) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if doc, err := Load(path); err == nil {
					store.Replace(doc)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nil
}
