// Package fec implements forward error correction over fixed-size groups of
// media packets. Each group of span N media packets is covered by K
// redundancy symbols; the decoder rebuilds missing packets from the symbols
// that arrive in time and abandons groups whose playout deadline has passed.
//
// Recovery is opportunistic and never holds up delivery: media packets pass
// through the decoder immediately, and reconstructed packets follow as soon
// as the group math allows.
package fec

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/audiolink/wire"
)

// Strategy defines one redundancy scheme: how symbol bodies are built over a
// group at the sender and how missing packets are rebuilt at the receiver.
type Strategy interface {
	// Kind identifies the symbol encoding on the wire.
	Kind() wire.SymbolKind

	// BuildSymbols creates the symbol bodies covering the group. The group
	// slice holds the media packets in sequence order.
	BuildSymbols(group []*wire.Packet, symbols int) ([][]byte, error)

	// Recover rebuilds missing packets of the group from the packets
	// present and the symbols of this kind received so far. It returns
	// only packets that were missing.
	Recover(g *group) ([]*wire.Packet, error)
}

// parityHeaderSize prefixes each parity body: timestamp XOR and payload
// size XOR for the covered packets.
const parityHeaderSize = 12

// ParityStrategy spreads the group across its symbols by sequence residue
// and XORs each subset. A class with a single missing packet is recoverable
// from its symbol; K symbols tolerate up to K losses when they fall in
// distinct classes.
type ParityStrategy struct{}

// Kind returns the parity symbol kind.
func (ParityStrategy) Kind() wire.SymbolKind {
	return wire.KindParity
}

// BuildSymbols XORs timestamp, payload size and payload bytes of every
// group member whose offset falls in the symbol's residue class.
func (ParityStrategy) BuildSymbols(group []*wire.Packet, symbols int) ([][]byte, error) {
	if symbols <= 0 || symbols > len(group) {
		return nil, fmt.Errorf("%w: %d symbols over %d packets", ErrBadGroup, symbols, len(group))
	}

	bodies := make([][]byte, symbols)
	for i := range bodies {
		maxLen := 0
		for offset := i; offset < len(group); offset += symbols {
			if n := len(group[offset].Payload); n > maxLen {
				maxLen = n
			}
		}

		body := make([]byte, parityHeaderSize+maxLen)
		var tsXor uint64
		var sizeXor uint32
		for offset := i; offset < len(group); offset += symbols {
			pkt := group[offset]
			tsXor ^= pkt.Timestamp
			sizeXor ^= uint32(len(pkt.Payload))
			for j, b := range pkt.Payload {
				body[parityHeaderSize+j] ^= b
			}
		}
		binary.LittleEndian.PutUint64(body[0:8], tsXor)
		binary.LittleEndian.PutUint32(body[8:12], sizeXor)
		bodies[i] = body
	}

	return bodies, nil
}

// Recover rebuilds at most one packet per residue class by XORing the
// class symbol with the class members that are present.
func (ParityStrategy) Recover(g *group) ([]*wire.Packet, error) {
	var recovered []*wire.Packet

	for _, sym := range g.symbols {
		if sym.Kind != wire.KindParity {
			continue
		}
		if len(sym.Body) < parityHeaderSize {
			return recovered, fmt.Errorf("%w: parity body %d bytes", wire.ErrSymbolTooShort, len(sym.Body))
		}

		missingOffset := -1
		missingCount := 0
		for offset := int(sym.Index); offset < g.span; offset += int(sym.Symbols) {
			if g.present[offset] == nil {
				missingCount++
				missingOffset = offset
			}
		}
		if missingCount != 1 {
			continue
		}

		tsXor := binary.LittleEndian.Uint64(sym.Body[0:8])
		sizeXor := binary.LittleEndian.Uint32(sym.Body[8:12])
		payloadXor := make([]byte, len(sym.Body)-parityHeaderSize)
		copy(payloadXor, sym.Body[parityHeaderSize:])

		for offset := int(sym.Index); offset < g.span; offset += int(sym.Symbols) {
			pkt := g.present[offset]
			if pkt == nil {
				continue
			}
			tsXor ^= pkt.Timestamp
			sizeXor ^= uint32(len(pkt.Payload))
			for j, b := range pkt.Payload {
				if j >= len(payloadXor) {
					break
				}
				payloadXor[j] ^= b
			}
		}

		if int(sizeXor) > len(payloadXor) {
			return recovered, fmt.Errorf("%w: recovered size %d exceeds symbol body", ErrBadGroup, sizeXor)
		}

		pkt := &wire.Packet{
			Sequence:  g.memberSeq(missingOffset),
			Timestamp: tsXor,
			Payload:   payloadXor[:sizeXor],
		}
		g.present[missingOffset] = pkt
		recovered = append(recovered, pkt)
	}

	return recovered, nil
}

// CopyStrategy duplicates group members verbatim. Each symbol body is the
// full wire serialization of one media packet, so any copy that arrives can
// stand in for its original regardless of which other packets were lost.
type CopyStrategy struct{}

// Kind returns the copy symbol kind.
func (CopyStrategy) Kind() wire.SymbolKind {
	return wire.KindCopy
}

// BuildSymbols serializes the last packets of the group, newest first, one
// per symbol.
func (CopyStrategy) BuildSymbols(group []*wire.Packet, symbols int) ([][]byte, error) {
	if symbols <= 0 || symbols > len(group) {
		return nil, fmt.Errorf("%w: %d symbols over %d packets", ErrBadGroup, symbols, len(group))
	}

	bodies := make([][]byte, symbols)
	for i := range bodies {
		data, err := group[len(group)-1-i].Serialize()
		if err != nil {
			return nil, err
		}
		bodies[i] = data
	}
	return bodies, nil
}

// Recover parses each copy symbol and admits the carried packet if its
// slot in the group is still empty.
func (CopyStrategy) Recover(g *group) ([]*wire.Packet, error) {
	var recovered []*wire.Packet

	for _, sym := range g.symbols {
		if sym.Kind != wire.KindCopy {
			continue
		}
		pkt, err := wire.ParsePacket(sym.Body)
		if err != nil {
			return recovered, err
		}
		offset, ok := g.memberOffset(pkt.Sequence)
		if !ok || g.present[offset] != nil {
			continue
		}
		g.present[offset] = pkt
		recovered = append(recovered, pkt)
	}

	return recovered, nil
}
