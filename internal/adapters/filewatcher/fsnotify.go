// Package filewatcher turns files dropped into the upload directory into
// ingestion requests.
package filewatcher

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// uploadExtensions are the formats ingestion can read.
var uploadExtensions = []string{".pdf", ".txt", ".md", ".markdown"}

// FSNotifyWatcher implements ports.FileWatcher on fsnotify. Only files whose
// extension is in the watch set produce events.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions map[string]bool
}

// NewFSNotifyWatcher watches for the given extensions, matched without regard
// to case. With none given it watches every upload format.
func NewFSNotifyWatcher(extensions []string) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating fsnotify watcher")
	}

	if len(extensions) == 0 {
		extensions = uploadExtensions
	}
	set := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		set["."+strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return &FSNotifyWatcher{watcher: w, extensions: set}, nil
}

// Watch adds dir and streams its events until ctx is done or the watcher is
// stopped. The channel is closed on return.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, errors.Wrapf(err, "watching %s", dir)
	}

	events := make(chan ports.FileEvent, 100)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				op, relevant := operation(ev.Op)
				if !relevant || !w.watches(ev.Name) {
					continue
				}
				select {
				case events <- ports.FileEvent{Path: ev.Name, Operation: op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Str("component", "filewatcher").Str("dir", dir).Msg("watch error")
			}
		}
	}()
	return events, nil
}

// Stop closes the underlying watcher, which ends any running Watch.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *FSNotifyWatcher) watches(path string) bool {
	return w.extensions[strings.ToLower(filepath.Ext(path))]
}

// operation maps an fsnotify op onto a FileOperation. A rename moves the file
// away, so it reads as a delete. Chmod is ignored.
func operation(op fsnotify.Op) (ports.FileOperation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return ports.FileCreated, true
	case op.Has(fsnotify.Write):
		return ports.FileModified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return ports.FileDeleted, true
	default:
		return 0, false
	}
}
