package rules

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/cermatapp/cermat/internal/models"
)

const reloadDebounce = 400 * time.Millisecond

// Engine serves rule matches from a table that can be swapped at runtime
// when the rule file changes on disk.
type Engine struct {
	mu     sync.RWMutex
	table  *Table
	path   string
	logger *zap.Logger

	watcher  *fsnotify.Watcher
	reload   *time.Timer
	reloadMu sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for reload events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine over table. path is the rule file to watch for
// hot reload; empty means the table is fixed for the process lifetime.
func NewEngine(table *Table, path string, opts ...EngineOption) *Engine {
	e := &Engine{table: table, path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Match runs the current table against text.
func (e *Engine) Match(text string) []models.RuleMatch {
	e.mu.RLock()
	t := e.table
	e.mu.RUnlock()
	return t.Match(text)
}

// Table returns the current table.
func (e *Engine) Table() *Table {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table
}

// Reload re-reads the rule file and swaps the table. A parse failure keeps
// the previous table in place.
func (e *Engine) Reload() error {
	if e.path == "" {
		return nil
	}
	table, err := LoadFile(e.path)
	if err != nil {
		e.logger.Warn("rule reload failed, keeping previous table",
			zap.String("path", e.path), zap.Error(err))
		return err
	}
	e.mu.Lock()
	e.table = table
	e.mu.Unlock()
	e.logger.Info("rule table reloaded", zap.String("path", e.path), zap.Int("goals", table.Len()))
	return nil
}

// Watch starts watching the rule file's directory and reloads on change,
// debounced. It runs until ctx is cancelled. No-op when no path is set.
func (e *Engine) Watch(ctx context.Context) error {
	if e.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory, not the file: editors replace files on save and
	// the watch on the old inode would be lost.
	if err := watcher.Add(filepath.Dir(e.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	e.watcher = watcher
	go e.run(ctx)
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer e.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(e.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			e.scheduleReload()
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				e.logger.Debug("rule watcher error", zap.Error(err))
			}
		}
	}
}

func (e *Engine) scheduleReload() {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	if e.reload != nil {
		e.reload.Stop()
	}
	e.reload = time.AfterFunc(reloadDebounce, func() { _ = e.Reload() })
}
