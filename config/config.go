// Package config loads receiver settings from a YAML file and the
// AUDIOLINK_* environment, layered over built-in defaults that match the
// pipeline's own.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opd-ai/audiolink"
	"github.com/opd-ai/audiolink/audio"
	"github.com/opd-ai/audiolink/fec"
	"github.com/opd-ai/audiolink/jitter"
	"github.com/opd-ai/audiolink/monitor"
	"github.com/opd-ai/audiolink/qos"
	"github.com/opd-ai/audiolink/transport"
)

type Config struct {
	Listen  Listen  `mapstructure:"listen"`
	Audio   Audio   `mapstructure:"audio"`
	Jitter  Jitter  `mapstructure:"jitter"`
	Fec     Fec     `mapstructure:"fec"`
	Qos     Qos     `mapstructure:"qos"`
	Monitor Monitor `mapstructure:"monitor"`
	Log     Log     `mapstructure:"log"`
}

// Listen configures the UDP ingest socket.
type Listen struct {
	Addr         string `mapstructure:"addr"`
	QueueSize    int    `mapstructure:"queue_size"`
	SocketBuffer int    `mapstructure:"socket_buffer"`
	DSCP         int    `mapstructure:"dscp"`
}

// Audio configures the payload codec, the playout format, and the
// device-facing output adaptation.
type Audio struct {
	Codec         string        `mapstructure:"codec"`
	SampleRate    uint32        `mapstructure:"sample_rate"`
	Channels      int           `mapstructure:"channels"`
	FrameDuration time.Duration `mapstructure:"frame_duration"`
	DeviceRate    uint32        `mapstructure:"device_rate"`
	Gain          float64       `mapstructure:"gain"`
}

// Jitter configures the playout buffer.
type Jitter struct {
	TargetDelay time.Duration `mapstructure:"target_delay"`
	MaxCapacity int           `mapstructure:"max_capacity"`
}

// Fec configures redundancy decoding. Strategy selects the recovery
// schemes tried: "parity", "copy", or empty for both.
type Fec struct {
	Span         int           `mapstructure:"span"`
	MaxGroups    int           `mapstructure:"max_groups"`
	DecodeMargin time.Duration `mapstructure:"decode_margin"`
	Strategy     string        `mapstructure:"strategy"`
}

// Qos configures the network statistics window and the adaptation bounds.
type Qos struct {
	WindowSize            int           `mapstructure:"window_size"`
	RecomputeInterval     time.Duration `mapstructure:"recompute_interval"`
	MinAdaptationInterval time.Duration `mapstructure:"min_adaptation_interval"`
	BaseDelay             time.Duration `mapstructure:"base_delay"`
	DelayGain             float64       `mapstructure:"delay_gain"`
	MinDelay              time.Duration `mapstructure:"min_delay"`
	MaxDelay              time.Duration `mapstructure:"max_delay"`
	Thresholds            Thresholds    `mapstructure:"thresholds"`
}

// Thresholds are the quality classification boundaries. Zero values fall
// back to the monitor's defaults.
type Thresholds struct {
	GoodLossPercent float64       `mapstructure:"good_loss_percent"`
	FairLossPercent float64       `mapstructure:"fair_loss_percent"`
	PoorLossPercent float64       `mapstructure:"poor_loss_percent"`
	GoodJitter      time.Duration `mapstructure:"good_jitter"`
	FairJitter      time.Duration `mapstructure:"fair_jitter"`
	PoorJitter      time.Duration `mapstructure:"poor_jitter"`
}

// Monitor configures the observability surface.
type Monitor struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	PushInterval   time.Duration `mapstructure:"push_interval"`
}

// Log configures the global logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration, matching the defaults each
// pipeline component would pick on its own.
func Default() *Config {
	return &Config{
		Listen: Listen{
			Addr:      "0.0.0.0:12345",
			QueueSize: 256,
		},
		Audio: Audio{
			Codec:         "opus",
			SampleRate:    48000,
			Channels:      2,
			FrameDuration: 2500 * time.Microsecond,
			Gain:          1.0,
		},
		Jitter: Jitter{
			TargetDelay: 5 * time.Millisecond,
			MaxCapacity: 20,
		},
		Fec: Fec{
			Span:         4,
			MaxGroups:    64,
			DecodeMargin: 2 * time.Millisecond,
		},
		Qos: Qos{
			WindowSize: 100,
			BaseDelay:  5 * time.Millisecond,
			DelayGain:  4.0,
			MinDelay:   2500 * time.Microsecond,
			MaxDelay:   25 * time.Millisecond,
		},
		Monitor: Monitor{
			Addr:           monitor.DefaultAddr,
			ReportInterval: 5 * time.Second,
			PushInterval:   time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from cfgFile, or when cfgFile is empty from
// an "audiolink.yaml" found in the working directory, ~/.audiolink or
// /etc/audiolink. A missing file is not an error; the defaults apply.
// AUDIOLINK_* environment variables override file keys, with dots replaced
// by underscores (AUDIOLINK_LISTEN_ADDR).
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("audiolink")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.audiolink")
		v.AddConfigPath("/etc/audiolink")
	}

	v.SetEnvPrefix("AUDIOLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Receiver maps the file configuration onto the pipeline configuration.
func (c *Config) Receiver() audiolink.Config {
	return audiolink.Config{
		Ingest: transport.Config{
			ListenAddr:   c.Listen.Addr,
			QueueSize:    c.Listen.QueueSize,
			SocketBuffer: c.Listen.SocketBuffer,
			DSCP:         c.Listen.DSCP,
		},
		Qos: qos.Config{
			WindowSize:            c.Qos.WindowSize,
			RecomputeInterval:     c.Qos.RecomputeInterval,
			MinAdaptationInterval: c.Qos.MinAdaptationInterval,
			BaseDelay:             c.Qos.BaseDelay,
			DelayGain:             c.Qos.DelayGain,
			MinDelay:              c.Qos.MinDelay,
			MaxDelay:              c.Qos.MaxDelay,
			Thresholds: qos.QualityThresholds{
				GoodLossPercent: c.Qos.Thresholds.GoodLossPercent,
				FairLossPercent: c.Qos.Thresholds.FairLossPercent,
				PoorLossPercent: c.Qos.Thresholds.PoorLossPercent,
				GoodJitter:      c.Qos.Thresholds.GoodJitter,
				FairJitter:      c.Qos.Thresholds.FairJitter,
				PoorJitter:      c.Qos.Thresholds.PoorJitter,
			},
		},
		Fec: fec.Config{
			Span:         c.Fec.Span,
			MaxGroups:    c.Fec.MaxGroups,
			DecodeMargin: c.Fec.DecodeMargin,
			Strategies:   c.Fec.strategies(),
		},
		Jitter: jitter.Config{
			TargetDelay: c.Jitter.TargetDelay,
			MaxCapacity: c.Jitter.MaxCapacity,
		},
		Format: audio.Format{
			SampleRate:    c.Audio.SampleRate,
			Channels:      c.Audio.Channels,
			FrameDuration: c.Audio.FrameDuration,
		},
		Codec:      c.Audio.Codec,
		DeviceRate: c.Audio.DeviceRate,
		Gain:       c.Audio.Gain,
	}
}

// strategies maps the strategy name onto the recovery schemes tried. An
// empty name keeps the decoder's default of both.
func (f Fec) strategies() []fec.Strategy {
	switch f.Strategy {
	case "parity":
		return []fec.Strategy{fec.ParityStrategy{}}
	case "copy":
		return []fec.Strategy{fec.CopyStrategy{}}
	default:
		return nil
	}
}

// MonitorServer maps the monitor group onto the monitor configuration.
// When the monitor is disabled the returned address is empty and the
// report line stays off.
func (c *Config) MonitorServer() monitor.Config {
	mc := monitor.Config{
		ReportInterval: c.Monitor.ReportInterval,
		PushInterval:   c.Monitor.PushInterval,
	}
	if c.Monitor.Enabled {
		mc.Addr = c.Monitor.Addr
		if mc.Addr == "" {
			mc.Addr = monitor.DefaultAddr
		}
	}
	return mc
}
