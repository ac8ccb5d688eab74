package audiolink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/audiolink/audio"
	"github.com/opd-ai/audiolink/clock"
	"github.com/opd-ai/audiolink/fec"
	"github.com/opd-ai/audiolink/jitter"
	"github.com/opd-ai/audiolink/qos"
	"github.com/opd-ai/audiolink/transport"
)

// Config assembles the per-subsystem tuning for a receiver. Zero values
// select the documented defaults.
type Config struct {
	// Ingest configures the UDP socket and the hand-off queue.
	Ingest transport.Config

	// Qos tunes the statistics window and the adaptation bounds.
	Qos qos.Config

	// Fec tunes the redundancy group span and decode deadline margin.
	Fec fec.Config

	// Jitter sets the initial target delay and the hard capacity bound.
	Jitter jitter.Config

	// Format is the playout output format.
	Format audio.Format

	// Codec selects the payload decoder: "opus" or "pcm".
	Codec string

	// Sink receives playout frames. Nil discards them.
	Sink audio.Sink

	// DeviceRate, when non-zero, resamples playout to the device rate
	// before the sink sees it.
	DeviceRate uint32

	// Gain scales playout samples with clipping. Zero means unity.
	Gain float64

	// TimeProvider is the wall-clock source; nil selects the real clock.
	TimeProvider clock.TimeProvider
}

// DefaultConfig returns the receiver defaults: opus payloads decoded to
// 48kHz stereo 2.5ms frames, ingest on port 12345.
func DefaultConfig() Config {
	return Config{
		Ingest: transport.DefaultConfig(),
		Qos:    qos.DefaultConfig(),
		Fec:    fec.DefaultConfig(),
		Jitter: jitter.DefaultConfig(),
		Format: audio.DefaultFormat(),
		Codec:  "opus",
	}
}

// Receiver is the assembled receive pipeline: ingest socket, processing
// worker, and playout loop around the adaptive jitter buffer.
//
// A Receiver runs at most once: New, Start, Stop.
type Receiver struct {
	cfg       Config
	sessionID string
	tp        clock.TimeProvider
	clk       *clock.PlayoutClock

	qosMon *qos.Monitor
	fecDec *fec.Decoder
	buf    *jitter.Buffer
	stage  *audio.Stage
	sink   audio.Sink
	player *audio.Player
	ingest *transport.Ingest

	cancel   context.CancelFunc
	group    *errgroup.Group
	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	stopErr  error

	mu         sync.Mutex
	statsSince time.Time
	baseline   Stats

	// lastApplied dedupes tuning application; touched only by the
	// processing worker.
	lastApplied *qos.Snapshot
}

// New validates the configuration, constructs the pipeline, and binds the
// ingest socket. Bind and codec failures are returned; nothing runs until
// Start.
func New(cfg Config) (*Receiver, error) {
	def := DefaultConfig()
	if cfg.Codec == "" {
		cfg.Codec = def.Codec
	}
	if cfg.Format == (audio.Format{}) {
		cfg.Format = def.Format
	}
	if cfg.Ingest.ListenAddr == "" {
		cfg.Ingest.ListenAddr = def.Ingest.ListenAddr
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}

	tp := clock.Provider(cfg.TimeProvider)
	clk, err := clock.NewPlayoutClock(cfg.Format.FrameDuration)
	if err != nil {
		return nil, err
	}

	dec, err := audio.NewDecoder(cfg.Codec, cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: codec %q: %v", ErrDecode, cfg.Codec, err)
	}

	qcfg := cfg.Qos
	if qcfg.PacketSpacing <= 0 {
		qcfg.PacketSpacing = cfg.Format.FrameDuration
	}
	qcfg.TimeProvider = cfg.TimeProvider

	fcfg := cfg.Fec
	fcfg.Clock = clk

	jcfg := cfg.Jitter
	jcfg.Clock = clk

	r := &Receiver{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		tp:        tp,
		clk:       clk,
		qosMon:    qos.NewMonitor(qcfg),
		fecDec:    fec.NewDecoder(fcfg),
		sink:      cfg.Sink,
	}
	if r.sink == nil {
		r.sink = audio.NullSink{}
	}
	if cfg.DeviceRate != 0 || (cfg.Gain != 0 && cfg.Gain != 1.0) {
		r.sink, err = audio.NewDeviceSink(r.sink, cfg.Format, cfg.DeviceRate, cfg.Gain)
		if err != nil {
			return nil, err
		}
	}

	r.buf, err = jitter.NewBuffer(jcfg)
	if err != nil {
		return nil, err
	}
	r.stage, err = audio.NewStage(r.buf, dec, clk, cfg.Format)
	if err != nil {
		return nil, err
	}
	r.player = audio.NewPlayer(r.stage, r.sink, cfg.TimeProvider)

	// Bind last so a config error earlier never leaks a socket.
	r.ingest, err = transport.NewIngest(cfg.Ingest)
	if err != nil {
		_ = r.stage.Close()
		return nil, fmt.Errorf("%w: %v", ErrSocket, err)
	}

	r.statsSince = tp.Now()

	logrus.WithFields(logrus.Fields{
		"component": "receiver",
		"session":   r.sessionID,
		"addr":      r.ingest.LocalAddr().String(),
		"codec":     cfg.Codec,
		"frame":     cfg.Format.FrameDuration,
	}).Info("receiver ready")

	return r, nil
}

// SessionID returns the identifier tagging this run's logs and snapshots.
func (r *Receiver) SessionID() string {
	return r.sessionID
}

// LocalAddr returns the bound ingest address.
func (r *Receiver) LocalAddr() net.Addr {
	return r.ingest.LocalAddr()
}

// OnQualityChange registers a callback for network quality transitions.
func (r *Receiver) OnQualityChange(cb func(old, new qos.NetworkQuality)) {
	r.qosMon.OnQualityChange(cb)
}

// Start launches the pipeline: the playout loop, the processing worker,
// and finally the ingest receive loop.
func (r *Receiver) Start(ctx context.Context) error {
	if r.stopped.Load() {
		return errors.New("receiver already stopped")
	}
	if r.started.Swap(true) {
		return errors.New("receiver already started")
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.group, ctx = errgroup.WithContext(ctx)

	r.mu.Lock()
	r.statsSince = r.tp.Now()
	r.mu.Unlock()

	runCtx := ctx
	r.group.Go(func() error {
		return r.processLoop(runCtx)
	})
	r.group.Go(func() error {
		if err := r.player.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	r.ingest.Start(ctx)

	logrus.WithFields(logrus.Fields{
		"component": "receiver",
		"session":   r.sessionID,
	}).Info("receiver started")
	return nil
}

// Stop shuts the pipeline down in reverse order: the ingest socket closes
// first to unblock its goroutine, the workers drain, remaining queue
// entries are discarded, and the audio side closes last. Stop is
// idempotent.
func (r *Receiver) Stop() error {
	r.stopOnce.Do(func() {
		r.stopped.Store(true)
		r.stopErr = r.ingest.Close()
		if r.cancel != nil {
			r.cancel()
			_ = r.group.Wait()
		}
		for {
			if _, ok := r.ingest.Queue().TryPop(); !ok {
				break
			}
		}
		_ = r.stage.Close()
		_ = r.sink.Close()

		stats := r.Stats()
		logrus.WithFields(logrus.Fields{
			"component": "receiver",
			"session":   r.sessionID,
			"received":  stats.PacketsReceived,
			"loss":      stats.LossCount,
			"recovered": stats.FecRecovered,
			"underruns": stats.Underruns,
		}).Info("receiver stopped")
	})
	return r.stopErr
}

// processLoop is the processing worker: it drains the ingest queue through
// FEC and QoS bookkeeping into the jitter buffer.
func (r *Receiver) processLoop(ctx context.Context) error {
	queue := r.ingest.Queue()
	for {
		entry, ok := queue.Pop(ctx)
		if !ok {
			return nil
		}
		r.processOne(entry)
	}
}

func (r *Receiver) processOne(entry transport.Received) {
	for _, emitted := range r.fecDec.Offer(entry.Packet) {
		if !emitted.Reconstructed {
			r.qosMon.ObserveMedia(emitted.Packet.Sequence, entry.Arrival)
		}
		r.buf.Add(emitted.Packet, emitted.Reconstructed)
	}
	r.fecDec.Sweep()
	r.applyTuning()
}

// applyTuning pushes the latest QoS recommendation into the jitter buffer.
// Published snapshots are immutable, so pointer identity tells whether
// anything changed.
func (r *Receiver) applyTuning() {
	snap := r.qosMon.Snapshot()
	if snap == r.lastApplied {
		return
	}
	r.lastApplied = snap
	if !snap.Reliable {
		return
	}
	r.buf.SetTargetDelay(snap.TargetDelay, snap.BufferPackets)
}

// Stats returns the statistics snapshot, cumulative since Start or the
// last ResetStats.
func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	base := r.baseline
	since := r.statsSince
	r.mu.Unlock()

	var uptime time.Duration
	if !since.IsZero() {
		uptime = r.tp.Now().Sub(since)
	}
	s := r.gather()
	s.StartedAt = since
	return s.minus(base).derive(uptime)
}

// ResetStats zeroes the cumulative counters without touching pipeline
// state.
func (r *Receiver) ResetStats() {
	snapshot := r.gather()
	r.mu.Lock()
	r.baseline = snapshot
	r.statsSince = r.tp.Now()
	r.mu.Unlock()
}

// gather collects the raw cumulative counters from every component.
func (r *Receiver) gather() Stats {
	packets, bytes, formatErrs, readErrs, drops := r.ingest.Counters()
	js := r.buf.Stats()
	fs := r.fecDec.Stats()
	ss := r.stage.Stats()
	ds := r.player.Deadline()
	snap := r.qosMon.Snapshot()

	return Stats{
		SessionID: r.sessionID,

		PacketsReceived:   packets,
		BytesReceived:     bytes,
		FormatErrors:      formatErrs,
		ReadErrors:        readErrs,
		QueueDrops:        drops,
		LossCount:         js.GapSkips,
		ReorderedCount:    r.qosMon.Reordered(),
		DuplicatesDropped: js.Duplicates,
		LateDropped:       js.LateDropped,
		OverflowDropped:   js.OverflowDropped,
		Underruns:         js.Underruns,
		DecodeErrors:      ss.DecodeErrors,
		FramesDecoded:     ss.Decoded,
		FramesConcealed:   ss.Concealed,
		FramesSilence:     ss.Silence,
		FecRecovered:      fs.Recovered,
		FecUnrecoverable:  fs.Unrecoverable,
		FecSymbols:        fs.SymbolsReceived,
		FecSymbolErrors:   fs.SymbolErrors,
		DeadlineMisses:    ds.Misses,
		CapacityChanges:   js.CapacityChanges,

		CurrentQueueDepth:  r.ingest.Queue().Depth(),
		BufferState:        js.State.String(),
		BufferDepth:        js.Depth,
		BufferCapacity:     js.Capacity,
		CurrentBufferDelay: js.TargetDelay,
		Jitter:             snap.Jitter,
		LossPercent:        snap.LossPercent,
		Quality:            snap.Quality.String(),
		RecommendedFec:     snap.RedundancyPercent,
		MeetingDeadline:    ds.Meeting,
	}
}
