package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

func TestFSNotifyWatcher_DefaultExtensions(t *testing.T) {
	watcher, err := NewFSNotifyWatcher(nil)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	for _, name := range []string{"/tmp/REPORT.PDF", "/tmp/notes.txt", "/tmp/readme.md", "/tmp/guide.markdown"} {
		if !watcher.watches(name) {
			t.Errorf("%s should be watched by default", name)
		}
	}
	if watcher.watches("/tmp/image.png") {
		t.Error(".png should not be watched")
	}
}

func TestFSNotifyWatcher_ExplicitExtensions(t *testing.T) {
	watcher, err := NewFSNotifyWatcher([]string{"PDF"})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if !watcher.watches("/tmp/a.pdf") {
		t.Error("extensions without a dot should still match")
	}
	if watcher.watches("/tmp/a.txt") {
		t.Error(".txt should not be watched when only pdf is requested")
	}
}

func TestOperation(t *testing.T) {
	cases := []struct {
		op       fsnotify.Op
		want     ports.FileOperation
		relevant bool
	}{
		{fsnotify.Create, ports.FileCreated, true},
		{fsnotify.Create | fsnotify.Write, ports.FileCreated, true},
		{fsnotify.Write, ports.FileModified, true},
		{fsnotify.Remove, ports.FileDeleted, true},
		{fsnotify.Rename, ports.FileDeleted, true},
		{fsnotify.Chmod, 0, false},
	}
	for _, tc := range cases {
		got, relevant := operation(tc.op)
		if relevant != tc.relevant || (relevant && got != tc.want) {
			t.Errorf("operation(%v) = %v, %v; want %v, %v", tc.op, got, relevant, tc.want, tc.relevant)
		}
	}
}

func TestFSNotifyWatcher_WatchDirectory(t *testing.T) {
	dir := t.TempDir()

	watcher, _ := NewFSNotifyWatcher([]string{".pdf"})
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	// Create an ignored file, then a watched one
	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("hi"), 0644)
		os.WriteFile(filepath.Join(dir, "test.pdf"), []byte("%PDF"), 0644)
	}()

	select {
	case event := <-events:
		if event.Operation != ports.FileCreated {
			t.Errorf("expected create event, got %v", event.Operation)
		}
		if filepath.Base(event.Path) != "test.pdf" {
			t.Errorf("unexpected event path %s", event.Path)
		}
	case <-ctx.Done():
		t.Error("timeout waiting for event")
	}
}

func TestFSNotifyWatcher_MissingDirectory(t *testing.T) {
	watcher, _ := NewFSNotifyWatcher(nil)
	defer watcher.Stop()

	if _, err := watcher.Watch(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("watching a missing directory should fail")
	}
}

func TestUploadWatcher_AcceptsCreatedFiles(t *testing.T) {
	dir := t.TempDir()
	watcher, err := NewFSNotifyWatcher(nil)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	accepted := make(chan string, 1)
	accept := func(ctx context.Context, path string) (*entities.Document, error) {
		accepted <- path
		return &entities.Document{ID: 1, FileName: filepath.Base(path)}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go NewUploadWatcher(watcher, accept, 20*time.Millisecond).Run(ctx, dir)

	go func() {
		time.Sleep(200 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "upload.pdf"), []byte("%PDF-1.7"), 0644)
	}()

	select {
	case path := <-accepted:
		if filepath.Base(path) != "upload.pdf" {
			t.Errorf("unexpected accepted path %s", path)
		}
	case <-ctx.Done():
		t.Error("timeout waiting for upload to be accepted")
	}
}
