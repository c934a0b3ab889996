package kube

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Invalidator is the subset of KubeconfigProvider the watcher needs.
type Invalidator interface {
	Path() string
	Invalidate()
}

// Watcher invalidates the cached clientset whenever the kubeconfig file is
// replaced, rewritten, or removed. The upload endpoint overwrites the file at
// a fixed path, so the watcher observes the containing directory.
type Watcher struct {
	provider Invalidator
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewWatcher creates a watcher on the directory containing the provider's
// kubeconfig path. The directory must exist.
func NewWatcher(provider Invalidator, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create kubeconfig watcher: %w", err)
	}
	dir := filepath.Dir(provider.Path())
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{provider: provider, watcher: fw, logger: logger}, nil
}

// Run processes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	target := filepath.Clean(w.provider.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.logger.Info("kubeconfig changed, invalidating cached clientset", "op", event.Op.String())
				w.provider.Invalidate()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("kubeconfig watcher error", "error", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
