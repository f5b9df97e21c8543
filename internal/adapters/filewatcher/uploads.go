package filewatcher

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// AcceptFunc registers a newly dropped upload.
type AcceptFunc func(ctx context.Context, path string) (*entities.Document, error)

// UploadWatcher hands files created in an upload directory to AcceptFunc
// once they stop growing.
type UploadWatcher struct {
	watcher  ports.FileWatcher
	accept   AcceptFunc
	interval time.Duration
}

// NewUploadWatcher creates an UploadWatcher. interval is how long a file's
// size must stay unchanged before it is accepted.
func NewUploadWatcher(watcher ports.FileWatcher, accept AcceptFunc, interval time.Duration) *UploadWatcher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &UploadWatcher{watcher: watcher, accept: accept, interval: interval}
}

// Run watches dir until ctx is done.
func (u *UploadWatcher) Run(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	events, err := u.watcher.Watch(ctx, dir)
	if err != nil {
		return err
	}
	logger := log.With().Str("component", "uploads").Str("dir", dir).Logger()
	logger.Info().Msg("watching upload directory")

	for event := range events {
		if event.Operation != ports.FileCreated {
			continue
		}
		if !u.settle(ctx, event.Path) {
			continue
		}
		doc, err := u.accept(ctx, event.Path)
		if err != nil {
			logger.Warn().Err(err).Str("path", event.Path).Msg("upload rejected")
			continue
		}
		logger.Info().Int64("document_id", doc.ID).Str("file_name", doc.FileName).Msg("upload accepted")
	}
	return nil
}

// settle waits until path exists and its size is stable across one interval.
func (u *UploadWatcher) settle(ctx context.Context, path string) bool {
	last := int64(-1)
	for i := 0; i < 120; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == last {
			return true
		}
		last = info.Size()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(u.interval):
		}
	}
	return true
}
