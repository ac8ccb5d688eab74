// Package wire implements the packet format for the audio stream.
//
// Every datagram carries one packet: a fixed 16-byte little-endian header
// followed by a variable payload holding either an encoded audio frame or a
// redundancy symbol.
//
// Example:
//
//	pkt := &wire.Packet{
//	    Sequence:  42,
//	    Timestamp: captureMicros,
//	    Payload:   frame,
//	}
//
//	data, err := pkt.Serialize()
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed size of the packet header in bytes.
	HeaderSize = 16

	// MaxPayloadSize bounds the payload of a single packet.
	MaxPayloadSize = 65536
)

var (
	// ErrPacketTooShort is returned when the input cannot hold a header.
	ErrPacketTooShort = errors.New("packet too short")

	// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrSizeMismatch is returned when the declared payload size disagrees
	// with the bytes actually present.
	ErrSizeMismatch = errors.New("payload size mismatch")
)

// Packet is one unit of the audio stream.
//
// Sequence increases monotonically per stream for media packets; redundancy
// symbols live in the reserved high-bit range (see sequence.go). Timestamp
// is the capture-side monotonic clock in microseconds.
type Packet struct {
	Sequence  uint32
	Timestamp uint64
	Payload   []byte
}

// TotalSize returns the serialized size of the packet in bytes.
func (p *Packet) TotalSize() int {
	return HeaderSize + len(p.Payload)
}

// Serialize converts a packet to a byte slice for transmission.
func (p *Packet) Serialize() ([]byte, error) {
	if len(p.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p.Payload))
	}

	// Format: [sequence (4 bytes)][timestamp (8 bytes)][payload size (4 bytes)][payload]
	result := make([]byte, HeaderSize+len(p.Payload))
	binary.LittleEndian.PutUint32(result[0:4], p.Sequence)
	binary.LittleEndian.PutUint64(result[4:12], p.Timestamp)
	binary.LittleEndian.PutUint32(result[12:16], uint32(len(p.Payload)))
	copy(result[HeaderSize:], p.Payload)

	return result, nil
}

// ParsePacket converts a byte slice to a Packet structure.
//
// It fails when the input is shorter than the header, when the declared
// payload size does not equal the remaining byte count, or when the declared
// size exceeds MaxPayloadSize. It never panics on hostile input.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooShort, len(data))
	}

	payloadSize := binary.LittleEndian.Uint32(data[12:16])
	if payloadSize > MaxPayloadSize {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrPayloadTooLarge, payloadSize)
	}
	if int(payloadSize) != len(data)-HeaderSize {
		return nil, fmt.Errorf("%w: declared %d, have %d", ErrSizeMismatch, payloadSize, len(data)-HeaderSize)
	}

	packet := &Packet{
		Sequence:  binary.LittleEndian.Uint32(data[0:4]),
		Timestamp: binary.LittleEndian.Uint64(data[4:12]),
		Payload:   make([]byte, payloadSize),
	}
	copy(packet.Payload, data[HeaderSize:])

	return packet, nil
}
