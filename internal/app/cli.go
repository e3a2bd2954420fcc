package app

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/config"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/logging"
)

// #region flags
// AddConfigFlags registers the flags every command shares and binds the
// logging ones to v.
func AddConfigFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	f.String("config", "", "config file (default ./promptforge.yaml)")
	f.String("log-level", "", "trace|debug|info|warn|error|disabled")
	f.String("log-format", "", "console|json")
	_ = v.BindPFlag("log.level", f.Lookup("log-level"))
	_ = v.BindPFlag("log.format", f.Lookup("log-format"))
}

// LoadConfig reads configuration for cmd and builds the root logger on w.
func LoadConfig(cmd *cobra.Command, v *viper.Viper, w io.Writer) (*config.Config, zerolog.Logger, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, file)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := logging.New(cfg.Log, w)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger.With().Str("cmd", cmd.Name()).Logger(), nil
}

// #endregion flags
