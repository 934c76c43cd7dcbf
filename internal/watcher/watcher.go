// Package watcher ingests files as they appear or change in a directory.
package watcher

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cloo-solutions/ragent/internal/loader"
)

// DefaultDebounce coalesces the burst of writes editors emit on save.
const DefaultDebounce = 500 * time.Millisecond

// HandleFunc is called once per settled file change.
type HandleFunc func(ctx context.Context, path string) error

// Watcher wraps fsnotify with extension filtering and per-path debouncing.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	handle   HandleFunc

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

func New(debounce time.Duration, handle HandleFunc) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fs:       fs,
		debounce: debounce,
		handle:   handle,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Watch monitors dir until ctx is cancelled. Only files loader.Supported
// accepts are reported.
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	log.Printf("watching %s", dir)

	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !loader.Supported(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Printf("file watcher error: %v", err)
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[path]; ok {
		// an expired timer runs its callback again once re-armed
		if !timer.Reset(w.debounce) {
			w.wg.Add(1)
		}
		return
	}

	w.wg.Add(1)
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()

		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := w.handle(ctx, path); err != nil {
			log.Printf("failed to ingest %s: %v", path, err)
		}
	})
}

// stopTimers cancels pending callbacks and waits for running ones.
func (w *Watcher) stopTimers() {
	w.mu.Lock()
	for path, timer := range w.timers {
		if timer.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
}
