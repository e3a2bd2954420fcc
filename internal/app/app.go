// Package app wires configuration into a running widget with its sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/analytics"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/codec"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/config"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/controller"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/gate"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/policy"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/prompt"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/schedule"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/sinks"
)

// #region options
// Options override collaborators that are normally derived from config.
type Options struct {
	Scheduler    schedule.Scheduler // nil uses wall-clock timers
	Clipboard    domain.Clipboard   // nil uses the system clipboard when available
	CodecDial    []grpc.DialOption  // extra options for the remote selector
	SessionID    string             // empty generates one
	DisableWatch bool
}

// #endregion options

// #region app
// App owns a widget and everything that has to be closed with it.
type App struct {
	Widget   *controller.Widget
	Notices  *sinks.RecordingNotifier
	Recorder *analytics.Recorder // nil when analytics is disabled
	Catalog  *prompt.Catalog

	logger  zerolog.Logger
	store   *analytics.Store
	codec   *codec.CodecClient
	watcher *prompt.CatalogWatcher
	cancel  context.CancelFunc
	wg      conc.WaitGroup
}

// Build constructs the widget described by cfg. On error everything opened
// so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (a *App, err error) {
	a = &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	cat, err := LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return a, err
	}
	a.Catalog = cat

	pc, err := cfg.PolicyConfig()
	if err != nil {
		return a, err
	}
	pol, err := policy.New(pc)
	if err != nil {
		return a, err
	}

	seed := cfg.Widget.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	sel, err := a.selector(cfg, cat, seed, opts)
	if err != nil {
		return a, err
	}

	sink, err := a.analytics(ctx, cfg, opts.SessionID)
	if err != nil {
		return a, err
	}

	clip := opts.Clipboard
	if clip == nil {
		sys := sinks.NewSystemClipboard()
		if sys.Available() {
			clip = sys
		} else {
			logger.Warn().Msg("no system clipboard; copies are kept in memory")
			clip = sinks.NewMemoryClipboard()
		}
	}

	a.Notices = sinks.NewRecordingNotifier()
	w, err := controller.New(cfg.WidgetConfig(), controller.Deps{
		Policy:    pol,
		Gate:      gate.NewGate(cfg.GateConfig()),
		Catalog:   cat,
		Selector:  sel,
		Scheduler: opts.Scheduler,
		Analytics: sink,
		Clipboard: clip,
		Notifier:  sinks.MultiNotifier{sinks.NewLogNotifier(logger), a.Notices},
		Logger:    logger,
	})
	if err != nil {
		return a, err
	}
	a.Widget = w
	return a, nil
}

func (a *App) selector(cfg *config.Config, cat *prompt.Catalog, seed uint64, opts Options) (prompt.Selector, error) {
	if cfg.Codec.Addr != "" {
		c, err := codec.NewCodecClient(cfg.Codec.Addr, opts.CodecDial...)
		if err != nil {
			return nil, err
		}
		a.codec = c
		a.logger.Info().Str("addr", cfg.Codec.Addr).Msg("using remote selector")
		return c, nil
	}

	local := prompt.NewTemplateSelector(cat, seed)
	if cfg.Catalog.Watch && cfg.Catalog.Path != "" && !opts.DisableWatch {
		cw, err := prompt.NewCatalogWatcher(cfg.Catalog.Path, local, a.logger)
		if err != nil {
			return nil, err
		}
		wctx, cancel := context.WithCancel(context.Background())
		a.watcher = cw
		a.cancel = cancel
		a.wg.Go(func() {
			if err := cw.Run(wctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("catalog watcher stopped")
			}
		})
	}
	return local, nil
}

func (a *App) analytics(ctx context.Context, cfg *config.Config, sessionID string) (domain.AnalyticsSink, error) {
	logSink := analytics.NewLogSink(a.logger)
	if !cfg.Analytics.Enabled {
		return logSink, nil
	}
	store, err := analytics.NewStore(ctx, cfg.Analytics.DBPath)
	if err != nil {
		return nil, err
	}
	a.store = store
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	a.Recorder = analytics.NewRecorder(store, sessionID, cfg.Analytics.Buffer, a.logger)
	return analytics.Multi{a.Recorder, logSink}, nil
}

// Close shuts the widget down first so no event is recorded after the
// recorder drains.
func (a *App) Close() error {
	var errs []error
	if a.Widget != nil {
		errs = append(errs, a.Widget.Close())
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	a.wg.Wait()
	if a.Recorder != nil {
		errs = append(errs, a.Recorder.Close())
		written, dropped, failed := a.Recorder.Stats()
		a.logger.Debug().Int64("written", written).Int64("dropped", dropped).Int64("failed", failed).Msg("analytics flushed")
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.codec != nil {
		errs = append(errs, a.codec.Close())
	}
	return errors.Join(errs...)
}

// #endregion app

// #region catalog
// LoadCatalog reads the catalog at path, or the embedded one when path is
// empty.
func LoadCatalog(path string) (*prompt.Catalog, error) {
	if path == "" {
		return prompt.DefaultCatalog()
	}
	cat, err := prompt.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// #endregion catalog
