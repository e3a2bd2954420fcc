package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/app"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/config"
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
		Use:          "controller",
		Short:        "Chat with the prompt builder in the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if off, _ := cmd.Flags().GetBool("no-analytics"); off {
				v.Set("analytics.enabled", false)
			}
			cfg, logger, err := app.LoadConfig(cmd, v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, logger, app.Options{})
			if err != nil {
				return fmt.Errorf("start widget: %w", err)
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn().Err(err).Msg("shutdown")
				}
			}()
			if a.Recorder != nil {
				logger.Debug().Str("session", a.Recorder.SessionID()).Str("db", cfg.Analytics.DBPath).Msg("recording analytics")
			}

			return newREPL(a, cmd.OutOrStdout(), nil).run(ctx, cmd.InOrStdin())
		},
	}
	bindFlags(cmd, v)
	return cmd
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	app.AddConfigFlags(cmd, v)

	f := cmd.Flags()
	f.String("mode", "", "starting mode: quick, deep or cracked")
	f.Uint64("seed", 0, "seed for prompt variants (0 = random)")
	f.String("codec-addr", "", "remote selector address (empty selects locally)")
	f.String("catalog", "", "prompt catalog YAML (empty uses the built-in one)")
	f.Bool("watch", false, "reload the catalog when it changes")
	f.Bool("no-analytics", false, "do not record analytics events")
	_ = v.BindPFlag("mode", f.Lookup("mode"))
	_ = v.BindPFlag("widget.seed", f.Lookup("seed"))
	_ = v.BindPFlag("codec.addr", f.Lookup("codec-addr"))
	_ = v.BindPFlag("catalog.path", f.Lookup("catalog"))
	_ = v.BindPFlag("catalog.watch", f.Lookup("watch"))
}

// #endregion main
