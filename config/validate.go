package config

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiolink/audio"
)

// Validate checks the configuration and returns all problems found.
// Values that would break the pipeline are clamped to safe ones; the
// remaining errors are logged as warnings and left for the caller to
// treat as fatal or not.
func (c *Config) Validate() []error {
	var errs []error

	if c.Listen.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Listen.Addr); err != nil {
			errs = append(errs, fmt.Errorf("listen.addr %q is not host:port: %w", c.Listen.Addr, err))
		}
	}
	if c.Listen.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("listen.queue_size %d is negative, using default", c.Listen.QueueSize))
		c.Listen.QueueSize = 0
	} else if c.Listen.QueueSize > 65536 {
		errs = append(errs, fmt.Errorf("listen.queue_size %d exceeds maximum 65536, clamping", c.Listen.QueueSize))
		c.Listen.QueueSize = 65536
	}
	if c.Listen.DSCP < 0 || c.Listen.DSCP > 63 {
		errs = append(errs, fmt.Errorf("listen.dscp %d outside 0..63, disabling marking", c.Listen.DSCP))
		c.Listen.DSCP = 0
	}

	switch c.Audio.Codec {
	case "", "opus", "pcm":
	default:
		errs = append(errs, fmt.Errorf("audio.codec %q is not valid (use opus or pcm)", c.Audio.Codec))
	}
	format := audio.Format{
		SampleRate:    c.Audio.SampleRate,
		Channels:      c.Audio.Channels,
		FrameDuration: c.Audio.FrameDuration,
	}
	if err := format.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("audio format: %w", err))
	}
	if c.Audio.Gain < 0 {
		errs = append(errs, fmt.Errorf("audio.gain %g is negative, using unity", c.Audio.Gain))
		c.Audio.Gain = 1.0
	}

	if c.Jitter.TargetDelay < 0 {
		errs = append(errs, fmt.Errorf("jitter.target_delay %s is negative, using default", c.Jitter.TargetDelay))
		c.Jitter.TargetDelay = 0
	} else if c.Jitter.TargetDelay > time.Second {
		errs = append(errs, fmt.Errorf("jitter.target_delay %s exceeds maximum 1s, clamping", c.Jitter.TargetDelay))
		c.Jitter.TargetDelay = time.Second
	}
	if c.Jitter.MaxCapacity < 0 {
		errs = append(errs, fmt.Errorf("jitter.max_capacity %d is negative, using default", c.Jitter.MaxCapacity))
		c.Jitter.MaxCapacity = 0
	} else if c.Jitter.MaxCapacity > 4096 {
		errs = append(errs, fmt.Errorf("jitter.max_capacity %d exceeds maximum 4096, clamping", c.Jitter.MaxCapacity))
		c.Jitter.MaxCapacity = 4096
	}

	// The wire encodes the group span in one byte.
	if c.Fec.Span < 0 {
		errs = append(errs, fmt.Errorf("fec.span %d is negative, using default", c.Fec.Span))
		c.Fec.Span = 0
	} else if c.Fec.Span > 255 {
		errs = append(errs, fmt.Errorf("fec.span %d exceeds maximum 255, clamping", c.Fec.Span))
		c.Fec.Span = 255
	}
	if c.Fec.MaxGroups < 0 {
		errs = append(errs, fmt.Errorf("fec.max_groups %d is negative, using default", c.Fec.MaxGroups))
		c.Fec.MaxGroups = 0
	}
	switch c.Fec.Strategy {
	case "", "parity", "copy":
	default:
		errs = append(errs, fmt.Errorf("fec.strategy %q is not valid (use parity or copy), using both", c.Fec.Strategy))
		c.Fec.Strategy = ""
	}

	if c.Qos.MinDelay > 0 && c.Qos.MaxDelay > 0 && c.Qos.MinDelay > c.Qos.MaxDelay {
		errs = append(errs, fmt.Errorf("qos.min_delay %s exceeds qos.max_delay %s, using defaults", c.Qos.MinDelay, c.Qos.MaxDelay))
		c.Qos.MinDelay = 0
		c.Qos.MaxDelay = 0
	}
	if c.Qos.DelayGain < 0 {
		errs = append(errs, fmt.Errorf("qos.delay_gain %g is negative, using default", c.Qos.DelayGain))
		c.Qos.DelayGain = 0
	}

	if c.Monitor.Enabled && c.Monitor.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Monitor.Addr); err != nil {
			errs = append(errs, fmt.Errorf("monitor.addr %q is not host:port: %w", c.Monitor.Addr, err))
		}
	}

	if c.Log.Level != "" {
		if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, fmt.Errorf("log.level %q is not valid: %w", c.Log.Level, err))
		}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not valid (use text or json)", c.Log.Format))
	}

	for _, err := range errs {
		logrus.WithFields(logrus.Fields{
			"component": "config",
			"error":     err,
		}).Warn("config validation")
	}

	return errs
}

// Apply configures the global logger from the log group.
func (l Log) Apply() {
	if l.Level != "" {
		if level, err := logrus.ParseLevel(l.Level); err == nil {
			logrus.SetLevel(level)
		}
	}
	if l.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
