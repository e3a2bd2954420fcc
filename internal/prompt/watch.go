package prompt

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// #region watcher
// CatalogWatcher reloads a catalog file into a TemplateSelector whenever the
// file changes. A file that fails to parse is logged and the previous
// catalog stays active.
type CatalogWatcher struct {
	path     string
	selector *TemplateSelector
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onReload func(*Catalog)
}

// NewCatalogWatcher starts watching the directory containing path. Watching
// the directory rather than the file survives editors that replace files
// via rename.
func NewCatalogWatcher(path string, selector *TemplateSelector, logger zerolog.Logger) (*CatalogWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &CatalogWatcher{
		path:     abs,
		selector: selector,
		watcher:  w,
		logger:   logger.With().Str("component", "catalog_watcher").Str("path", abs).Logger(),
	}, nil
}

// OnReload registers a callback invoked after each successful reload.
func (cw *CatalogWatcher) OnReload(fn func(*Catalog)) {
	cw.onReload = fn
}

// Run processes file events until ctx is done or the watcher is closed.
func (cw *CatalogWatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-cw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != cw.path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cw.reload()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return nil
			}
			cw.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// Close stops the underlying watcher.
func (cw *CatalogWatcher) Close() error {
	return cw.watcher.Close()
}

func (cw *CatalogWatcher) reload() {
	c, err := LoadCatalog(cw.path)
	if err != nil {
		cw.logger.Warn().Err(err).Msg("catalog reload rejected, keeping previous catalog")
		return
	}
	cw.selector.SetCatalog(c)
	cw.logger.Info().Msg("catalog reloaded")
	if cw.onReload != nil {
		cw.onReload(c)
	}
}

// #endregion watcher
