package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/controller"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/gate"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/logging"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/policy"
)

// EnvPrefix is prepended to every environment override, e.g.
// PROMPTFORGE_WIDGET_MAX_REFRESHES.
const EnvPrefix = "PROMPTFORGE"

// #region types
// Config is the full application configuration.
type Config struct {
	Mode      string          `mapstructure:"mode"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Gate      GateConfig      `mapstructure:"gate"`
	Widget    WidgetConfig    `mapstructure:"widget"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Codec     CodecConfig     `mapstructure:"codec"`
	Log       logging.Config  `mapstructure:"log"`
}

type PolicyConfig struct {
	Thresholds []int `mapstructure:"thresholds"` // exactly three, ascending
}

// GateConfig is the interaction count each mode needs.
type GateConfig struct {
	Quick   int `mapstructure:"quick"`
	Deep    int `mapstructure:"deep"`
	Cracked int `mapstructure:"cracked"`
}

type WidgetConfig struct {
	GenerationDelay  time.Duration `mapstructure:"generation_delay"`
	TypingInterval   time.Duration `mapstructure:"typing_interval"`
	TypingChunk      int           `mapstructure:"typing_chunk"`
	SelectTimeout    time.Duration `mapstructure:"select_timeout"`
	MaxRefreshes     int           `mapstructure:"max_refreshes"`
	MaxMessageLength int           `mapstructure:"max_message_length"`
	Seed             uint64        `mapstructure:"seed"` // 0 seeds from the clock
}

type CatalogConfig struct {
	Path  string `mapstructure:"path"` // empty uses the embedded catalog
	Watch bool   `mapstructure:"watch"`
}

type AnalyticsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	Buffer  int    `mapstructure:"buffer"`
}

// CodecConfig addresses the remote selector. An empty Addr selects
// locally.
type CodecConfig struct {
	Addr   string `mapstructure:"addr"`
	Listen string `mapstructure:"listen"`
}

// #endregion types

// #region load
// NewViper returns a viper instance with every default and environment
// binding registered. Callers may bind flags before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	pol := policy.DefaultConfig()
	g := gate.DefaultGateConfig()
	w := controller.DefaultConfig()

	v.SetDefault("mode", string(w.InitialMode))
	v.SetDefault("policy.thresholds", pol.Thresholds[:])

	v.SetDefault("gate.quick", g.MinInteractions[domain.ModeQuick])
	v.SetDefault("gate.deep", g.MinInteractions[domain.ModeDeep])
	v.SetDefault("gate.cracked", g.MinInteractions[domain.ModeCracked])

	v.SetDefault("widget.generation_delay", w.GenerationDelay)
	v.SetDefault("widget.typing_interval", w.TypingInterval)
	v.SetDefault("widget.typing_chunk", w.TypingChunk)
	v.SetDefault("widget.select_timeout", w.SelectTimeout)
	v.SetDefault("widget.max_refreshes", w.MaxRefreshes)
	v.SetDefault("widget.max_message_length", w.MaxMessageLength)
	v.SetDefault("widget.seed", 0)

	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.watch", false)

	v.SetDefault("analytics.enabled", true)
	v.SetDefault("analytics.db_path", "promptforge.db")
	v.SetDefault("analytics.buffer", 256)

	v.SetDefault("codec.addr", "")
	v.SetDefault("codec.listen", "127.0.0.1:50071")

	lc := logging.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
}

// Load reads configFile (optional) into v and returns the validated
// result. With an empty configFile, promptforge.yaml is looked up in the
// working directory and skipped when absent.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("promptforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// #endregion load

// #region validate
// Validate checks values that would make the widget misbehave.
func (c *Config) Validate() error {
	if _, err := domain.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("config mode: %w", err)
	}
	if _, err := c.PolicyConfig(); err != nil {
		return err
	}
	if c.Gate.Quick < 0 || c.Gate.Deep < 0 || c.Gate.Cracked < 0 {
		return errors.New("config gate: interaction counts must not be negative")
	}
	if c.Widget.MaxRefreshes <= 0 {
		return fmt.Errorf("config widget.max_refreshes: must be positive, got %d", c.Widget.MaxRefreshes)
	}
	if c.Widget.MaxMessageLength <= 0 {
		return fmt.Errorf("config widget.max_message_length: must be positive, got %d", c.Widget.MaxMessageLength)
	}
	if c.Widget.GenerationDelay < 0 {
		return errors.New("config widget.generation_delay: must not be negative")
	}
	if c.Analytics.Enabled && c.Analytics.DBPath == "" {
		return errors.New("config analytics.db_path: required when analytics is enabled")
	}
	return nil
}

// #endregion validate

// #region conversions
// PolicyConfig returns the tier policy configuration.
func (c *Config) PolicyConfig() (policy.Config, error) {
	pc := policy.DefaultConfig()
	if len(c.Policy.Thresholds) != 3 {
		return pc, fmt.Errorf("config policy.thresholds: need exactly 3 values, got %d", len(c.Policy.Thresholds))
	}
	copy(pc.Thresholds[:], c.Policy.Thresholds)
	if err := pc.Validate(); err != nil {
		return pc, fmt.Errorf("config policy: %w", err)
	}
	return pc, nil
}

// GateConfig returns the transition gate configuration.
func (c *Config) GateConfig() gate.GateConfig {
	return gate.GateConfig{MinInteractions: map[domain.Mode]int{
		domain.ModeQuick:   c.Gate.Quick,
		domain.ModeDeep:    c.Gate.Deep,
		domain.ModeCracked: c.Gate.Cracked,
	}}
}

// WidgetConfig returns the widget timings and limits.
func (c *Config) WidgetConfig() controller.Config {
	mode, _ := domain.ParseMode(c.Mode)
	return controller.Config{
		InitialMode:      mode,
		GenerationDelay:  c.Widget.GenerationDelay,
		TypingInterval:   c.Widget.TypingInterval,
		TypingChunk:      c.Widget.TypingChunk,
		SelectTimeout:    c.Widget.SelectTimeout,
		MaxRefreshes:     c.Widget.MaxRefreshes,
		MaxMessageLength: c.Widget.MaxMessageLength,
	}
}

// #endregion conversions
