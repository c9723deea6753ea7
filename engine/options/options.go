// Package options loads and persists the player-facing game options from a
// config file via viper, with sensible defaults for every key.
package options

import (
	"errors"

	"github.com/spf13/viper"

	"github.com/Carmen-Shannon/hexfab/common"
)

// GraphicsOptions are the renderer-facing settings.
type GraphicsOptions struct {
	VSync      bool    `mapstructure:"vsync"`
	MSAA       int     `mapstructure:"msaa"`
	FrameLimit float64 `mapstructure:"frame_limit"`
	UIScale    float64 `mapstructure:"ui_scale"`
	Fullscreen bool    `mapstructure:"fullscreen"`
}

// GameOptions are the simulation-facing settings.
type GameOptions struct {
	// AutosaveIntervalSec is how often the running map is autosaved, in
	// seconds. Zero disables autosaving.
	AutosaveIntervalSec int `mapstructure:"autosave_interval_sec"`
	// LastMap is the map reopened on launch.
	LastMap string `mapstructure:"last_map"`
}

// Options is the full persisted option set.
type Options struct {
	Graphics GraphicsOptions `mapstructure:"graphics"`
	Game     GameOptions     `mapstructure:"game"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("graphics.vsync", true)
	v.SetDefault("graphics.msaa", 4)
	v.SetDefault("graphics.frame_limit", 0.0)
	v.SetDefault("graphics.ui_scale", 1.0)
	v.SetDefault("graphics.fullscreen", false)
	v.SetDefault("game.autosave_interval_sec", 120)
	v.SetDefault("game.last_map", "main")
}

// Load reads options from options.toml in dir, falling back to defaults
// when the file is missing or a key is absent. A malformed file is logged
// and replaced by defaults rather than failing startup.
//
// Parameters:
//   - dir: the directory holding options.toml
//
// Returns:
//   - Options: the loaded (or default) options
func Load(dir string) Options {
	v := viper.New()
	v.SetConfigName("options")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			common.Logger().Warn("could not read options file, using defaults", "err", err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		common.Logger().Warn("invalid options file, using defaults", "err", err)
		fresh := viper.New()
		defaults(fresh)
		_ = fresh.Unmarshal(&opts)
	}
	return opts
}

// Save writes the options back to options.toml in dir.
//
// Parameters:
//   - dir: the directory holding options.toml
//   - opts: the options to persist
//
// Returns:
//   - error: an error if the file could not be written
func Save(dir string, opts Options) error {
	v := viper.New()
	v.SetConfigType("toml")

	v.Set("graphics.vsync", opts.Graphics.VSync)
	v.Set("graphics.msaa", opts.Graphics.MSAA)
	v.Set("graphics.frame_limit", opts.Graphics.FrameLimit)
	v.Set("graphics.ui_scale", opts.Graphics.UIScale)
	v.Set("graphics.fullscreen", opts.Graphics.Fullscreen)
	v.Set("game.autosave_interval_sec", opts.Game.AutosaveIntervalSec)
	v.Set("game.last_map", opts.Game.LastMap)

	return v.WriteConfigAs(dir + "/options.toml")
}
