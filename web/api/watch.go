package api

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/forgekit/forge/internal/runstate"
)

// watchRuntimeDir broadcasts a fresh snapshot whenever the run loop rewrites
// status.json or progress.json. The caller owns the returned watcher.
func (s *Server) watchRuntimeDir() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.runtimeDir); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				switch filepath.Base(event.Name) {
				case runstate.StatusFile:
					s.Broadcast(Event{Type: "status", Data: s.statusResponse()})
				case runstate.ProgressFile:
					s.Broadcast(Event{Type: "progress", Data: runstate.ReadProgress(s.runtimeDir)})
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, nil
}
