package fec

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiolink/wire"
)

// EncoderConfig controls group size and redundancy overhead on the send
// path.
type EncoderConfig struct {
	// Span is the number of media packets per group.
	Span int

	// RedundancyPercent sets the symbol overhead, clamped to [0, 50].
	RedundancyPercent float64

	// Strategy builds the symbol bodies. Defaults to ParityStrategy.
	Strategy Strategy
}

// DefaultEncoderConfig returns encoder parameters matching the decoder
// defaults.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		Span:              4,
		RedundancyPercent: 25.0,
		Strategy:          ParityStrategy{},
	}
}

// Encoder accumulates outgoing media packets into groups and emits the
// redundancy packets covering each completed group. The redundancy level
// can be adjusted between groups as network feedback arrives.
type Encoder struct {
	span     int
	strategy Strategy

	mu      sync.Mutex
	pct     float64
	groupID uint32
	pending []*wire.Packet
}

// NewEncoder creates an encoder with the given configuration.
func NewEncoder(cfg EncoderConfig) *Encoder {
	if cfg.Span <= 0 {
		cfg.Span = DefaultEncoderConfig().Span
	}
	if cfg.Span > 255 {
		// The symbol sub-header carries the span in one byte.
		cfg.Span = 255
	}
	if cfg.Strategy == nil {
		cfg.Strategy = ParityStrategy{}
	}

	e := &Encoder{
		span:     cfg.Span,
		strategy: cfg.Strategy,
		pending:  make([]*wire.Packet, 0, cfg.Span),
	}
	e.SetRedundancy(cfg.RedundancyPercent)
	return e
}

// SetRedundancy updates the redundancy overhead, clamped to [0, 50]. The
// new level applies from the next group boundary.
func (e *Encoder) SetRedundancy(pct float64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 50.0 {
		pct = 50.0
	}
	e.mu.Lock()
	e.pct = pct
	e.mu.Unlock()
}

// Redundancy returns the current redundancy overhead percentage.
func (e *Encoder) Redundancy() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pct
}

// Push adds an outgoing media packet and returns the redundancy packets due,
// if any. Completing a group emits its symbols; a packet that jumps to a new
// group first flushes whatever the previous group produced.
func (e *Encoder) Push(pkt *wire.Packet) ([]*wire.Packet, error) {
	if wire.IsRedundancy(pkt.Sequence) {
		return nil, fmt.Errorf("%w: sequence %d is not a media packet", ErrBadGroup, pkt.Sequence)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := wire.Group(pkt.Sequence, e.span)
	var out []*wire.Packet
	if len(e.pending) > 0 && id != e.groupID {
		out = e.flushLocked()
	}

	e.groupID = id
	e.pending = append(e.pending, pkt)
	if len(e.pending) == e.span {
		out = append(out, e.flushLocked()...)
	}
	return out, nil
}

// Flush emits symbols for the partially filled current group, for use at
// stream end. Parity symbols need the full group, so a partial flush only
// produces output for self-describing strategies.
func (e *Encoder) Flush() []*wire.Packet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

func (e *Encoder) flushLocked() []*wire.Packet {
	pending := e.pending
	e.pending = e.pending[:0]
	if len(pending) == 0 {
		return nil
	}
	if len(pending) < e.span && e.strategy.Kind() == wire.KindParity {
		return nil
	}

	k := int(float64(e.span)*e.pct/100.0 + 0.5)
	if k > len(pending) {
		k = len(pending)
	}
	if k <= 0 {
		return nil
	}

	bodies, err := e.strategy.BuildSymbols(pending, k)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "fec",
			"group":     e.groupID,
			"error":     err,
		}).Warn("Failed to build redundancy symbols")
		return nil
	}

	lastTs := pending[len(pending)-1].Timestamp
	out := make([]*wire.Packet, 0, len(bodies))
	for i, body := range bodies {
		sym := &wire.RedundancySymbol{
			Group:   e.groupID,
			Index:   uint8(i),
			Symbols: uint8(len(bodies)),
			Span:    uint8(e.span),
			Kind:    e.strategy.Kind(),
			Body:    body,
		}
		payload, err := sym.Serialize()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "fec",
				"group":     e.groupID,
				"error":     err,
			}).Warn("Failed to serialize redundancy symbol")
			continue
		}
		out = append(out, &wire.Packet{
			Sequence:  wire.RedundancySequence(e.groupID),
			Timestamp: lastTs,
			Payload:   payload,
		})
	}
	return out
}
