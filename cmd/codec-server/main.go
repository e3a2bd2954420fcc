package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/app"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/codec"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/config"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/prompt"
)

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	cmd := &cobra.Command{
		Use:          "codec-server",
		Short:        "Serve prompt selection over gRPC",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := app.LoadConfig(cmd, v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			lis, err := net.Listen("tcp", cfg.Codec.Listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Codec.Listen, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, lis, cfg, logger)
		},
	}
	app.AddConfigFlags(cmd, v)
	f := cmd.Flags()
	f.String("listen", "", "address to serve on (overrides codec.listen)")
	f.String("catalog", "", "prompt catalog YAML (empty uses the built-in one)")
	f.Bool("watch", false, "reload the catalog when it changes")
	f.Uint64("seed", 0, "seed for prompt variants (0 = random)")
	_ = v.BindPFlag("codec.listen", f.Lookup("listen"))
	_ = v.BindPFlag("catalog.path", f.Lookup("catalog"))
	_ = v.BindPFlag("catalog.watch", f.Lookup("watch"))
	_ = v.BindPFlag("widget.seed", f.Lookup("seed"))
	return cmd
}

// #endregion main

// #region serve
// serve runs the Selector service on lis until ctx is done.
func serve(ctx context.Context, lis net.Listener, cfg *config.Config, logger zerolog.Logger) error {
	cat, err := app.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	seed := cfg.Widget.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	sel := prompt.NewTemplateSelector(cat, seed)

	srv := grpc.NewServer()
	codec.RegisterSelectorServer(srv, sel, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", lis.Addr().String()).Msg("selector service listening")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	if cfg.Catalog.Watch && cfg.Catalog.Path != "" {
		cw, err := prompt.NewCatalogWatcher(cfg.Catalog.Path, sel, logger)
		if err != nil {
			srv.Stop()
			_ = g.Wait()
			return err
		}
		defer cw.Close()
		g.Go(func() error {
			if err := cw.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("stopping selector service")
		srv.GracefulStop()
		return nil
	})

	return g.Wait()
}

// #endregion serve
