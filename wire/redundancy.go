package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SymbolKind identifies how a redundancy symbol encodes its group.
type SymbolKind byte

const (
	// KindParity symbols carry an XOR across the group's media packets.
	KindParity SymbolKind = 0x01

	// KindCopy symbols carry a verbatim copy of one media packet.
	KindCopy SymbolKind = 0x02
)

// String returns a human-readable name for the symbol kind.
func (k SymbolKind) String() string {
	switch k {
	case KindParity:
		return "parity"
	case KindCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// SymbolHeaderSize is the fixed size of the redundancy sub-header that
// prefixes every redundancy payload.
const SymbolHeaderSize = 8

var (
	// ErrSymbolTooShort is returned when a redundancy payload cannot hold
	// its sub-header.
	ErrSymbolTooShort = errors.New("redundancy symbol too short")

	// ErrSymbolInvalid is returned for sub-header fields that violate the
	// group contract.
	ErrSymbolInvalid = errors.New("redundancy symbol invalid")
)

// RedundancySymbol is the decoded payload of a redundancy packet: which
// group it protects, its position among the group's K symbols, and the
// strategy-specific body.
type RedundancySymbol struct {
	Group   uint32
	Index   uint8
	Symbols uint8
	Span    uint8
	Kind    SymbolKind
	Body    []byte
}

// Serialize converts a redundancy symbol to the payload bytes of a
// redundancy packet.
func (s *RedundancySymbol) Serialize() ([]byte, error) {
	if s.Span == 0 || s.Symbols == 0 {
		return nil, fmt.Errorf("%w: zero span or symbol count", ErrSymbolInvalid)
	}
	if s.Index >= s.Symbols {
		return nil, fmt.Errorf("%w: index %d of %d symbols", ErrSymbolInvalid, s.Index, s.Symbols)
	}

	// Format: [group (4 bytes)][index (1)][symbols (1)][span (1)][kind (1)][body]
	result := make([]byte, SymbolHeaderSize+len(s.Body))
	binary.LittleEndian.PutUint32(result[0:4], s.Group)
	result[4] = s.Index
	result[5] = s.Symbols
	result[6] = s.Span
	result[7] = byte(s.Kind)
	copy(result[SymbolHeaderSize:], s.Body)

	return result, nil
}

// ParseRedundancySymbol converts a redundancy packet payload to a
// RedundancySymbol structure, applying the same rejection discipline as
// ParsePacket.
func ParseRedundancySymbol(data []byte) (*RedundancySymbol, error) {
	if len(data) < SymbolHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrSymbolTooShort, len(data))
	}

	symbol := &RedundancySymbol{
		Group:   binary.LittleEndian.Uint32(data[0:4]),
		Index:   data[4],
		Symbols: data[5],
		Span:    data[6],
		Kind:    SymbolKind(data[7]),
		Body:    make([]byte, len(data)-SymbolHeaderSize),
	}
	copy(symbol.Body, data[SymbolHeaderSize:])

	if symbol.Span == 0 || symbol.Symbols == 0 {
		return nil, fmt.Errorf("%w: zero span or symbol count", ErrSymbolInvalid)
	}
	if symbol.Index >= symbol.Symbols {
		return nil, fmt.Errorf("%w: index %d of %d symbols", ErrSymbolInvalid, symbol.Index, symbol.Symbols)
	}
	if symbol.Kind != KindParity && symbol.Kind != KindCopy {
		return nil, fmt.Errorf("%w: unknown kind 0x%02x", ErrSymbolInvalid, byte(symbol.Kind))
	}

	return symbol, nil
}
