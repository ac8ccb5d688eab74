// Package transport implements the network ingest side of the audio
// receiver.
//
// A single goroutine owns the UDP socket, stamps each datagram's arrival
// time, decodes it through the wire codec, and pushes it into a bounded
// queue feeding the processing context. Malformed datagrams are counted and
// dropped, never propagated.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiolink/clock"
	"github.com/opd-ai/audiolink/wire"
)

const (
	// maxDatagramSize is the receive buffer for a single datagram. Media
	// frames are far smaller; anything larger than a max wire packet is
	// truncated by the kernel and rejected by the codec.
	maxDatagramSize = wire.HeaderSize + wire.MaxPayloadSize

	// readDeadline bounds each blocking read so shutdown is observed
	// promptly.
	readDeadline = 100 * time.Millisecond

	// defaultSocketBuffer is the kernel receive buffer requested at bind.
	defaultSocketBuffer = 64 * 1024
)

// Config holds the ingest socket parameters.
type Config struct {
	// ListenAddr is the host:port to bind, e.g. "0.0.0.0:12345".
	ListenAddr string

	// QueueSize bounds the hand-off queue to the processing context.
	QueueSize int

	// SocketBuffer is the kernel receive buffer size in bytes.
	SocketBuffer int

	// DSCP, when non-zero, marks the socket with the given DiffServ code
	// point. Marking failures degrade to a warning.
	DSCP int

	// TimeProvider stamps datagram arrival; nil selects the real clock.
	TimeProvider clock.TimeProvider
}

// DefaultConfig returns the ingest defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "0.0.0.0:12345",
		QueueSize:    256,
		SocketBuffer: defaultSocketBuffer,
	}
}

// Ingest owns the receive socket. It is the only component with direct
// OS-socket ownership on the receive path.
type Ingest struct {
	conn  net.PacketConn
	queue *Queue
	tp    clock.TimeProvider

	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	started atomic.Bool

	packetsReceived atomic.Uint64
	bytesReceived   atomic.Uint64
	formatErrors    atomic.Uint64
	readErrors      atomic.Uint64
	queueDrops      atomic.Uint64
}

// NewIngest binds the socket and prepares the receive loop. Bind failures
// are fatal and returned to the caller; nothing is running until Start.
func NewIngest(cfg Config) (*Ingest, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.SocketBuffer <= 0 {
		cfg.SocketBuffer = defaultSocketBuffer
	}

	conn, err := net.ListenPacket("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", cfg.ListenAddr, err)
	}

	if udpConn, ok := conn.(*net.UDPConn); ok {
		if err := udpConn.SetReadBuffer(cfg.SocketBuffer); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "ingest",
				"bytes":     cfg.SocketBuffer,
				"error":     err,
			}).Warn("could not size socket receive buffer")
		}
	}

	if cfg.DSCP != 0 {
		if err := MarkPacketConn(conn, cfg.DSCP); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "ingest",
				"dscp":      cfg.DSCP,
				"error":     err,
			}).Warn("DSCP marking unavailable")
		}
	}

	in := &Ingest{
		conn: conn,
		tp:   clock.Provider(cfg.TimeProvider),
		done: make(chan struct{}),
	}
	in.queue = NewQueue(cfg.QueueSize, in.recordDrop)

	logrus.WithFields(logrus.Fields{
		"component": "ingest",
		"addr":      conn.LocalAddr().String(),
		"queue":     cfg.QueueSize,
	}).Info("ingest socket bound")

	return in, nil
}

// Start launches the receive loop. The loop exits when ctx is cancelled or
// the socket is closed.
func (in *Ingest) Start(ctx context.Context) {
	if in.started.Swap(true) {
		return
	}
	ctx, in.cancel = context.WithCancel(ctx)
	go in.receiveLoop(ctx)
}

// Close stops the receive loop by closing the socket, which unblocks any
// pending read, then waits for the goroutine to observe shutdown.
func (in *Ingest) Close() error {
	var err error
	in.once.Do(func() {
		if in.cancel != nil {
			in.cancel()
		}
		err = in.conn.Close()
		if in.started.Load() {
			<-in.done
		}
	})
	return err
}

// Queue returns the hand-off queue consumed by the processing context.
func (in *Ingest) Queue() *Queue {
	return in.queue
}

// LocalAddr returns the bound socket address.
func (in *Ingest) LocalAddr() net.Addr {
	return in.conn.LocalAddr()
}

// recordDrop counts a queue eviction. The evicted packet never reaches the
// QoS monitor, so its sequence gap already registers it as loss there; no
// separate signal is needed.
func (in *Ingest) recordDrop(entry Received) {
	in.queueDrops.Add(1)
	logrus.WithFields(logrus.Fields{
		"component": "ingest",
		"seq":       entry.Packet.Sequence,
	}).Debug("queue full, evicted oldest packet")
}

func (in *Ingest) receiveLoop(ctx context.Context) {
	defer close(in.done)

	buffer := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !in.readOne(buffer) {
			return
		}
	}
}

// readOne performs a single bounded read and returns false when the loop
// should exit.
func (in *Ingest) readOne(buffer []byte) bool {
	_ = in.conn.SetReadDeadline(time.Now().Add(readDeadline))

	n, _, err := in.conn.ReadFrom(buffer)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return true
		}
		if errors.Is(err, net.ErrClosed) {
			return false
		}
		in.readErrors.Add(1)
		logrus.WithFields(logrus.Fields{
			"component": "ingest",
			"error":     err,
		}).Warn("socket read failed")
		return true
	}

	arrival := in.tp.Now()
	packet, err := wire.ParsePacket(buffer[:n])
	if err != nil {
		in.formatErrors.Add(1)
		return true
	}

	in.packetsReceived.Add(1)
	in.bytesReceived.Add(uint64(n))
	in.queue.Push(Received{Packet: packet, Arrival: arrival})
	return true
}

// Counters returns the ingest-side counters: packets, bytes, format errors,
// read errors, and queue drops.
func (in *Ingest) Counters() (packets, bytes, formatErrs, readErrs, drops uint64) {
	return in.packetsReceived.Load(),
		in.bytesReceived.Load(),
		in.formatErrors.Load(),
		in.readErrors.Load(),
		in.queueDrops.Load()
}
