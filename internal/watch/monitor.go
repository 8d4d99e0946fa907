package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"aircrashes/internal/engine"
)

// FileMonitor reports changes to a single file. It watches the parent
// directory so that editors which replace the file by rename are seen too.
type FileMonitor struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

func NewFileMonitor(path string, debounce time.Duration) (*FileMonitor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &FileMonitor{path: abs, watcher: watcher, debounce: debounce}, nil
}

// Watch calls handler once per burst of writes to the file, until ctx is
// done or the watcher fails.
func (m *FileMonitor) Watch(ctx context.Context, handler func(string)) error {
	var (
		timer    *time.Timer
		fire     <-chan time.Time
		relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != m.path || event.Op&relevant == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(m.debounce)
			} else {
				timer.Reset(m.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			handler(m.path)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}

// Reloader rebuilds the dataset for a source and hands it to Publish. A
// failed reload leaves the previously published dataset in place.
type Reloader struct {
	Cache   *engine.Cache
	Source  engine.Source
	Publish func(*engine.Dataset)
	Log     *slog.Logger
}

func (r *Reloader) Reload(ctx context.Context) error {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	r.Cache.Invalidate(r.Source.Path)
	ds, err := r.Cache.Dataset(ctx, r.Source)
	if err != nil {
		log.Warn("reload failed, keeping previous dataset", "path", r.Source.Path, "error", err)
		return err
	}
	r.Publish(ds)
	log.Info("dataset reloaded", "path", r.Source.Path, "rows", ds.Len())
	return nil
}

// Run watches the source file and reloads on every change until ctx is done.
func (r *Reloader) Run(ctx context.Context, debounce time.Duration) error {
	m, err := NewFileMonitor(r.Source.Path, debounce)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Watch(ctx, func(string) {
		_ = r.Reload(ctx)
	})
}
