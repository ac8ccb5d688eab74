package fec

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiolink/clock"
	"github.com/opd-ai/audiolink/wire"
)

// ErrBadGroup is returned when group parameters or symbol contents are
// inconsistent with the group contract.
var ErrBadGroup = errors.New("fec group invalid")

// Config controls group tracking and recovery deadlines.
type Config struct {
	// Span is the number of media packets per group. Symbols advertising
	// a different span are rejected.
	Span int

	// MaxGroups bounds how many incomplete groups are tracked before the
	// oldest is evicted.
	MaxGroups int

	// DecodeMargin is how close to a group's playout deadline recovery is
	// still attempted. Groups within the margin are abandoned.
	DecodeMargin time.Duration

	// Clock supplies playout position for deadline checks. A nil clock
	// disables deadline expiry; the group bound still applies.
	Clock *clock.PlayoutClock

	// Strategies are the recovery schemes applied, in order. Defaults to
	// copy then parity.
	Strategies []Strategy
}

// DefaultConfig returns decoder parameters for the default stream format.
func DefaultConfig() Config {
	return Config{
		Span:         4,
		MaxGroups:    64,
		DecodeMargin: 2 * time.Millisecond,
	}
}

// Emitted is one packet leaving the decoder, flagged when it was rebuilt
// from redundancy rather than received.
type Emitted struct {
	Packet        *wire.Packet
	Reconstructed bool
}

// Stats is a point-in-time view of decoder activity.
type Stats struct {
	SymbolsReceived uint64
	SymbolErrors    uint64
	Recovered       uint64
	Unrecoverable   uint64
	ExpiredGroups   uint64
	EvictedGroups   uint64
	ActiveGroups    int
}

// group tracks one FEC group: the media packets seen so far, indexed by
// offset from the group's base sequence, and the symbols received for it.
type group struct {
	id      uint32
	base    uint32
	span    int
	present []*wire.Packet
	symbols map[uint8]*wire.RedundancySymbol
}

func (g *group) memberSeq(offset int) uint32 {
	return wire.SeqAdd(g.base, int32(offset))
}

func (g *group) memberOffset(seq uint32) (int, bool) {
	d := wire.SeqDiff(seq, g.base)
	if d < 0 || int(d) >= g.span {
		return 0, false
	}
	return int(d), true
}

func (g *group) missing() int {
	n := 0
	for _, p := range g.present {
		if p == nil {
			n++
		}
	}
	return n
}

// Decoder tracks FEC groups on the receive path and rebuilds missing media
// packets when redundancy symbols make that possible.
//
// Offer and Sweep are called from the processing goroutine; Stats may be
// read from anywhere. Media packets are never held back: every media packet
// offered is emitted immediately, with reconstructed packets following as
// recovery succeeds.
type Decoder struct {
	cfg        Config
	clk        *clock.PlayoutClock
	strategies []Strategy

	mu     sync.Mutex
	groups map[uint32]*group

	// done remembers recently completed groups so a trailing redundancy
	// symbol or duplicate media cannot reopen them as empty groups that
	// Sweep would then charge as unrecoverable. doneOrder bounds it FIFO.
	done      map[uint32]struct{}
	doneOrder []uint32

	symbolsReceived atomic.Uint64
	symbolErrors    atomic.Uint64
	recovered       atomic.Uint64
	unrecoverable   atomic.Uint64
	expiredGroups   atomic.Uint64
	evictedGroups   atomic.Uint64
}

// NewDecoder creates a decoder with the given configuration.
func NewDecoder(cfg Config) *Decoder {
	if cfg.Span <= 0 {
		cfg.Span = DefaultConfig().Span
	}
	if cfg.Span > 255 {
		cfg.Span = 255
	}
	if cfg.MaxGroups <= 0 {
		cfg.MaxGroups = DefaultConfig().MaxGroups
	}
	if cfg.DecodeMargin <= 0 {
		cfg.DecodeMargin = DefaultConfig().DecodeMargin
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = []Strategy{CopyStrategy{}, ParityStrategy{}}
	}

	return &Decoder{
		cfg:        cfg,
		clk:        cfg.Clock,
		strategies: cfg.Strategies,
		groups:     make(map[uint32]*group),
		done:       make(map[uint32]struct{}),
	}
}

// Offer routes one received packet through the decoder. Media packets are
// returned immediately, followed by any packets recovery produced.
// Redundancy packets produce only recovered packets. Malformed symbols are
// counted and dropped.
func (d *Decoder) Offer(pkt *wire.Packet) []Emitted {
	if wire.IsRedundancy(pkt.Sequence) {
		return d.offerSymbol(pkt)
	}
	return d.offerMedia(pkt)
}

func (d *Decoder) offerMedia(pkt *wire.Packet) []Emitted {
	out := []Emitted{{Packet: pkt}}

	id := wire.Group(pkt.Sequence, d.cfg.Span)
	if d.groupExpired(id) {
		return out
	}

	d.mu.Lock()
	if d.completedLocked(id) {
		d.mu.Unlock()
		return out
	}
	g := d.ensureGroupLocked(id)
	if offset, ok := g.memberOffset(pkt.Sequence); ok && g.present[offset] == nil {
		g.present[offset] = pkt
	}
	if g.missing() == 0 {
		d.releaseCompletedLocked(id)
		d.mu.Unlock()
		return out
	}
	recovered := d.recoverLocked(g)
	d.mu.Unlock()

	for _, p := range recovered {
		out = append(out, Emitted{Packet: p, Reconstructed: true})
	}
	return out
}

func (d *Decoder) offerSymbol(pkt *wire.Packet) []Emitted {
	d.symbolsReceived.Add(1)

	sym, err := wire.ParseRedundancySymbol(pkt.Payload)
	if err != nil {
		d.symbolErrors.Add(1)
		logrus.WithFields(logrus.Fields{
			"component": "fec",
			"error":     err,
		}).Debug("Dropping malformed redundancy symbol")
		return nil
	}
	if int(sym.Span) != d.cfg.Span {
		d.symbolErrors.Add(1)
		logrus.WithFields(logrus.Fields{
			"component":     "fec",
			"symbol_span":   sym.Span,
			"expected_span": d.cfg.Span,
		}).Debug("Dropping redundancy symbol with mismatched span")
		return nil
	}
	if d.groupExpired(sym.Group) {
		return nil
	}

	d.mu.Lock()
	if d.completedLocked(sym.Group) {
		d.mu.Unlock()
		return nil
	}
	g := d.ensureGroupLocked(sym.Group)
	g.symbols[sym.Index] = sym
	recovered := d.recoverLocked(g)
	d.mu.Unlock()

	out := make([]Emitted, 0, len(recovered))
	for _, p := range recovered {
		out = append(out, Emitted{Packet: p, Reconstructed: true})
	}
	return out
}

// Sweep abandons groups whose playout deadline has passed, counting their
// still-missing packets as unrecoverable. Call it periodically from the
// processing goroutine.
func (d *Decoder) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, g := range d.groups {
		if !d.groupExpired(id) {
			continue
		}
		if n := g.missing(); n > 0 {
			d.unrecoverable.Add(uint64(n))
			logrus.WithFields(logrus.Fields{
				"component": "fec",
				"group":     id,
				"missing":   n,
				"symbols":   len(g.symbols),
			}).Debug("Abandoning group past its playout deadline")
		}
		d.expiredGroups.Add(1)
		delete(d.groups, id)
	}
}

// Reset drops all group state.
func (d *Decoder) Reset() {
	d.mu.Lock()
	d.groups = make(map[uint32]*group)
	d.done = make(map[uint32]struct{})
	d.doneOrder = d.doneOrder[:0]
	d.mu.Unlock()
}

// Stats returns a snapshot of decoder counters.
func (d *Decoder) Stats() Stats {
	d.mu.Lock()
	active := len(d.groups)
	d.mu.Unlock()

	return Stats{
		SymbolsReceived: d.symbolsReceived.Load(),
		SymbolErrors:    d.symbolErrors.Load(),
		Recovered:       d.recovered.Load(),
		Unrecoverable:   d.unrecoverable.Load(),
		ExpiredGroups:   d.expiredGroups.Load(),
		EvictedGroups:   d.evictedGroups.Load(),
		ActiveGroups:    active,
	}
}

// groupExpired reports whether recovery for the group can no longer make
// its playout deadline.
func (d *Decoder) groupExpired(id uint32) bool {
	if d.clk == nil {
		return false
	}
	lastSeq := wire.SeqAdd(uint32(d.cfg.Span)*id, int32(d.cfg.Span-1))
	return d.clk.Expired(lastSeq, d.cfg.DecodeMargin)
}

func (d *Decoder) ensureGroupLocked(id uint32) *group {
	if g, ok := d.groups[id]; ok {
		return g
	}

	if len(d.groups) >= d.cfg.MaxGroups {
		d.evictOldestLocked()
	}

	g := &group{
		id:      id,
		base:    wire.SeqAdd(id*uint32(d.cfg.Span), 0),
		span:    d.cfg.Span,
		present: make([]*wire.Packet, d.cfg.Span),
		symbols: make(map[uint8]*wire.RedundancySymbol),
	}
	d.groups[id] = g
	return g
}

func (d *Decoder) evictOldestLocked() {
	var oldest *group
	for _, g := range d.groups {
		if oldest == nil || wire.SeqNewer(oldest.base, g.base) {
			oldest = g
		}
	}
	if oldest != nil {
		delete(d.groups, oldest.id)
		d.evictedGroups.Add(1)
	}
}

// recoverLocked runs the configured strategies until none makes progress,
// returning every packet rebuilt. Completed groups are released.
func (d *Decoder) recoverLocked(g *group) []*wire.Packet {
	if len(g.symbols) == 0 || g.missing() == 0 {
		return nil
	}

	var out []*wire.Packet
	for {
		progress := false
		for _, st := range d.strategies {
			rec, err := st.Recover(g)
			if err != nil {
				d.symbolErrors.Add(1)
				logrus.WithFields(logrus.Fields{
					"component": "fec",
					"group":     g.id,
					"strategy":  st.Kind().String(),
					"error":     err,
				}).Debug("Recovery attempt failed")
			}
			if len(rec) > 0 {
				progress = true
				out = append(out, rec...)
			}
		}
		if !progress {
			break
		}
	}

	if len(out) > 0 {
		d.recovered.Add(uint64(len(out)))
		logrus.WithFields(logrus.Fields{
			"component": "fec",
			"group":     g.id,
			"rebuilt":   len(out),
		}).Debug("Rebuilt missing packets from redundancy")
	}
	if g.missing() == 0 {
		d.releaseCompletedLocked(g.id)
	}
	return out
}

func (d *Decoder) completedLocked(id uint32) bool {
	_, ok := d.done[id]
	return ok
}

// releaseCompletedLocked drops a fully present group and records its id so
// later arrivals for it are ignored.
func (d *Decoder) releaseCompletedLocked(id uint32) {
	delete(d.groups, id)
	if _, ok := d.done[id]; ok {
		return
	}
	for len(d.doneOrder) >= d.cfg.MaxGroups {
		delete(d.done, d.doneOrder[0])
		d.doneOrder = d.doneOrder[1:]
	}
	d.done[id] = struct{}{}
	d.doneOrder = append(d.doneOrder, id)
}
