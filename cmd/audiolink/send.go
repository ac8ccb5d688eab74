package main

import (
	"fmt"
	"math"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/audiolink/audio"
	"github.com/opd-ai/audiolink/fec"
	"github.com/opd-ai/audiolink/transport"
	"github.com/opd-ai/audiolink/wire"
)

var (
	sendTarget     string
	sendDuration   time.Duration
	sendFrequency  float64
	sendRate       uint32
	sendChannels   int
	sendFrame      time.Duration
	sendSpan       int
	sendRedundancy float64
	sendLoss       float64
	sendDSCP       int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a PCM test tone to a receiver",
	Long: `send streams a sine tone as PCM frames with redundancy symbols, for
exercising a receiver without a live capture source. Losses can be
simulated to watch recovery and adaptation behave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSender()
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendTarget, "target", "127.0.0.1:12345", "receiver address")
	sendCmd.Flags().DurationVar(&sendDuration, "duration", 10*time.Second, "how long to stream")
	sendCmd.Flags().Float64Var(&sendFrequency, "frequency", 440, "tone frequency in Hz")
	sendCmd.Flags().Uint32Var(&sendRate, "rate", 48000, "sample rate in Hz")
	sendCmd.Flags().IntVar(&sendChannels, "channels", 2, "channel count")
	sendCmd.Flags().DurationVar(&sendFrame, "frame", 2500*time.Microsecond, "frame duration")
	sendCmd.Flags().IntVar(&sendSpan, "span", 4, "media packets per redundancy group")
	sendCmd.Flags().Float64Var(&sendRedundancy, "redundancy", 25, "redundancy percentage")
	sendCmd.Flags().Float64Var(&sendLoss, "loss", 0, "simulated loss percentage")
	sendCmd.Flags().IntVar(&sendDSCP, "dscp", transport.DSCPEF, "DSCP marking, 0 disables")
}

func runSender() error {
	format := audio.Format{
		SampleRate:    sendRate,
		Channels:      sendChannels,
		FrameDuration: sendFrame,
	}
	if err := format.Validate(); err != nil {
		return err
	}

	conn, err := net.Dial("udp", sendTarget)
	if err != nil {
		return fmt.Errorf("dial %s: %w", sendTarget, err)
	}
	defer conn.Close()

	if sendDSCP > 0 {
		if err := transport.MarkConn(conn, sendDSCP); err != nil {
			logrus.WithFields(logrus.Fields{
				"dscp":  sendDSCP,
				"error": err,
			}).Warn("dscp marking failed, sending unmarked")
		}
	}

	enc := fec.NewEncoder(fec.EncoderConfig{
		Span:              sendSpan,
		RedundancyPercent: sendRedundancy,
	})
	pcm := audio.NewPCMEncoder(format.SampleRate)
	tone := newToneGenerator(format, sendFrequency)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	logrus.WithFields(logrus.Fields{
		"target":     sendTarget,
		"duration":   sendDuration,
		"frame":      format.FrameDuration,
		"redundancy": sendRedundancy,
		"loss":       sendLoss,
	}).Info("streaming test tone")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(format.FrameDuration)
	defer ticker.Stop()

	var sent, dropped int
	start := time.Now()
	frames := uint32(sendDuration / format.FrameDuration)

	write := func(pkt *wire.Packet) error {
		if sendLoss > 0 && rng.Float64()*100 < sendLoss {
			dropped++
			return nil
		}
		data, err := pkt.Serialize()
		if err != nil {
			return err
		}
		if _, err := conn.Write(data); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		sent++
		return nil
	}

loop:
	for seq := uint32(0); seq < frames; seq++ {
		select {
		case <-sigCh:
			logrus.Info("interrupted")
			break loop
		case <-ticker.C:
		}

		payload, err := pcm.Encode(tone.next(), format.SampleRate)
		if err != nil {
			return err
		}
		media := &wire.Packet{
			Sequence:  seq,
			Timestamp: uint64(time.Since(start).Microseconds()),
			Payload:   payload,
		}
		if err := write(media); err != nil {
			return err
		}
		symbols, err := enc.Push(media)
		if err != nil {
			return err
		}
		for _, sym := range symbols {
			if err := write(sym); err != nil {
				return err
			}
		}
	}

	for _, sym := range enc.Flush() {
		if err := write(sym); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"sent":    sent,
		"dropped": dropped,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("stream finished")
	return nil
}

// toneGenerator produces sine frames with phase continuity across frames.
type toneGenerator struct {
	format audio.Format
	freq   float64
	phase  float64
	buf    []int16
}

func newToneGenerator(format audio.Format, freq float64) *toneGenerator {
	return &toneGenerator{
		format: format,
		freq:   freq,
		buf:    make([]int16, format.FrameSamples()),
	}
}

func (g *toneGenerator) next() []int16 {
	step := 2 * math.Pi * g.freq / float64(g.format.SampleRate)
	for i := 0; i < g.format.SamplesPerChannel(); i++ {
		v := int16(math.Sin(g.phase) * 0.3 * math.MaxInt16)
		for ch := 0; ch < g.format.Channels; ch++ {
			g.buf[i*g.format.Channels+ch] = v
		}
		g.phase += step
		if g.phase > 2*math.Pi {
			g.phase -= 2 * math.Pi
		}
	}
	return g.buf
}
