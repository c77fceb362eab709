package profiles

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Manager keeps a Registry in sync with a profiles YAML file, hot-reloading
// it when the file changes on disk.
type Manager struct {
	registry *Registry
	path     string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

// NewManager creates a manager for the profiles file at path. The file may
// be absent; built-in profiles remain available either way.
func NewManager(registry *Registry, path string, logger *zap.Logger) (*Manager, error) {
	if path == "" {
		return nil, fmt.Errorf("profiles file path cannot be empty")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Manager{
		registry: registry,
		path:     path,
		watcher:  watcher,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start loads the profiles file once and begins watching its directory for
// changes. A missing file at startup is not an error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("profiles manager already started")
	}
	m.started = true
	m.mu.Unlock()

	if err := m.registry.LoadFile(m.path); err != nil {
		m.logger.Warn("Profiles file not loaded, using built-ins only",
			zap.String("path", m.path),
			zap.Error(err),
		)
	} else {
		m.logger.Info("Loaded report profiles",
			zap.String("path", m.path),
			zap.Strings("profiles", m.registry.Names()),
		)
	}

	// Watch the directory rather than the file so atomic renames
	// (write-temp-then-rename) are observed.
	if err := m.watcher.Add(filepath.Dir(m.path)); err != nil {
		return fmt.Errorf("failed to watch profiles directory: %w", err)
	}

	go m.watchLoop(ctx)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context) {
	// Debounce timer: editors often emit several events per save.
	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			reload = time.After(250 * time.Millisecond)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Profiles watcher error", zap.Error(err))
		case <-reload:
			reload = nil
			if err := m.registry.LoadFile(m.path); err != nil {
				m.logger.Error("Profiles reload failed, keeping previous profiles",
					zap.String("path", m.path),
					zap.Error(err),
				)
				continue
			}
			m.logger.Info("Reloaded report profiles",
				zap.String("path", m.path),
				zap.Strings("profiles", m.registry.Names()),
			)
		}
	}
}

// Stop terminates the watch loop and releases the watcher.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	close(m.stopCh)
	m.started = false
	return m.watcher.Close()
}
