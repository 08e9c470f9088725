package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"dev.acmcsuf.com/pixeltree/effects"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// config is resolved from flags, then $PIXEL_* variables, then flag
// defaults.
type config struct {
	TargetIP      string        `mapstructure:"target-ip"`
	TargetPort    int           `mapstructure:"target-port"`
	PixelMap      string        `mapstructure:"pixel-map"`
	FPS           int           `mapstructure:"fps"`
	MinEffectTime time.Duration `mapstructure:"min-effect-time"`
	MaxEffectTime time.Duration `mapstructure:"max-effect-time"`
	FadeTime      time.Duration `mapstructure:"fade-time"`
	SendTimeout   time.Duration `mapstructure:"send-timeout"`
	Sim           string        `mapstructure:"sim"`
	SkipAck       bool          `mapstructure:"skip-ack"`
	Effects       []string      `mapstructure:"effects"`
	HTTPAdminAddr string        `mapstructure:"http-admin-addr"`
	Verbose       bool          `mapstructure:"verbose"`
}

func registerFlags(fs *pflag.FlagSet) {
	fs.String("target-ip", "127.0.0.1", "IP address of the pixel server ($PIXEL_TARGET_IP)")
	fs.Int("target-port", 7689, "port of the pixel server ($PIXEL_TARGET_PORT)")
	fs.String("pixel-map", "pixel-map.csv", "CSV file of pixel positions ($PIXEL_MAP_CSV)")
	fs.Int("fps", 30, "target frame rate ($PIXEL_FPS)")
	fs.Duration("min-effect-time", 30*time.Second, "shortest time an effect runs ($PIXEL_MIN_EFFECT_TIME)")
	fs.Duration("max-effect-time", 300*time.Second, "longest time an effect runs ($PIXEL_MAX_EFFECT_TIME)")
	fs.Duration("fade-time", 5*time.Second, "crossfade time between effects ($PIXEL_FADE_TIME)")
	fs.Duration("send-timeout", 5*time.Second, "give up on a frame after this long, 0 to wait forever")
	fs.String("sim", "", "send frames to the simulator listening on this unix socket instead")
	fs.Bool("skip-ack", false, "do not wait for the pixel server to acknowledge frames")
	fs.StringSliceP("effects", "e", nil, fmt.Sprintf("effects to rotate through (default all of %v)", effects.Names()))
	fs.StringP("http-admin-addr", "A", "127.0.0.1:9002", "HTTP admin server address, empty to disable")
	fs.BoolP("verbose", "v", false, "verbose logging")
}

// loadConfig resolves the configuration for the parsed flags in fs. Every
// flag can also be set as $PIXEL_<FLAG>, e.g. $PIXEL_FADE_TIME. Durations
// from the environment may be bare seconds.
func loadConfig(fs *pflag.FlagSet) (config, error) {
	v := viper.New()
	v.SetEnvPrefix("PIXEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("pixel-map", "PIXEL_MAP_CSV"); err != nil {
		return config{}, fmt.Errorf("failed to bind environment: %w", err)
	}
	if err := v.BindPFlags(fs); err != nil {
		return config{}, fmt.Errorf("failed to bind flags: %w", err)
	}

	var cfg config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// secondsHook decodes a bare number such as "90" or "2.5" into a duration of
// that many seconds. Anything else is left to the next hook.
func secondsHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}

	secs, err := strconv.ParseFloat(data.(string), 64)
	if err != nil {
		return data, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}
