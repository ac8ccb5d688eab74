package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// TestPacketSerialize tests the Packet.Serialize method.
func TestPacketSerialize(t *testing.T) {
	tests := []struct {
		name    string
		packet  *Packet
		wantErr bool
	}{
		{
			name: "valid packet",
			packet: &Packet{
				Sequence:  7,
				Timestamp: 123456789,
				Payload:   []byte{1, 2, 3, 4},
			},
			wantErr: false,
		},
		{
			name: "empty payload",
			packet: &Packet{
				Sequence:  0,
				Timestamp: 0,
				Payload:   []byte{},
			},
			wantErr: false,
		},
		{
			name: "nil payload",
			packet: &Packet{
				Sequence:  9,
				Timestamp: 1,
				Payload:   nil,
			},
			wantErr: false,
		},
		{
			name: "payload at limit",
			packet: &Packet{
				Sequence: 1,
				Payload:  make([]byte, MaxPayloadSize),
			},
			wantErr: false,
		},
		{
			name: "payload over limit",
			packet: &Packet{
				Sequence: 1,
				Payload:  make([]byte, MaxPayloadSize+1),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.packet.Serialize()
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			// Verify format: [sequence (4)][timestamp (8)][payload size (4)][payload]
			if len(result) != HeaderSize+len(tt.packet.Payload) {
				t.Errorf("Expected length %d, got %d", HeaderSize+len(tt.packet.Payload), len(result))
			}
			if got := binary.LittleEndian.Uint32(result[0:4]); got != tt.packet.Sequence {
				t.Errorf("Expected sequence %d, got %d", tt.packet.Sequence, got)
			}
			if got := binary.LittleEndian.Uint64(result[4:12]); got != tt.packet.Timestamp {
				t.Errorf("Expected timestamp %d, got %d", tt.packet.Timestamp, got)
			}
			if got := binary.LittleEndian.Uint32(result[12:16]); got != uint32(len(tt.packet.Payload)) {
				t.Errorf("Expected payload size %d, got %d", len(tt.packet.Payload), got)
			}
			if !bytes.Equal(result[HeaderSize:], tt.packet.Payload) {
				t.Error("Payload mismatch")
			}
		})
	}
}

// TestParsePacket tests the ParsePacket rejection discipline.
func TestParsePacket(t *testing.T) {
	valid, err := (&Packet{Sequence: 3, Timestamp: 99, Payload: []byte{0xAA, 0xBB}}).Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	// A 20-byte packet declaring 16 payload bytes while carrying only 4.
	mismatched := make([]byte, 20)
	binary.LittleEndian.PutUint32(mismatched[12:16], 16)

	oversized := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(oversized[12:16], MaxPayloadSize+1)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "valid packet", data: valid, wantErr: nil},
		{name: "empty input", data: []byte{}, wantErr: ErrPacketTooShort},
		{name: "truncated header", data: make([]byte, HeaderSize-1), wantErr: ErrPacketTooShort},
		{name: "declared size exceeds bytes present", data: mismatched, wantErr: ErrSizeMismatch},
		{name: "declared size exceeds limit", data: oversized, wantErr: ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet, err := ParsePacket(tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if packet.Sequence != 3 || packet.Timestamp != 99 {
				t.Errorf("Header fields wrong: %+v", packet)
			}
			if !bytes.Equal(packet.Payload, []byte{0xAA, 0xBB}) {
				t.Error("Payload mismatch")
			}
		})
	}
}

// TestPacketRoundTrip verifies ParsePacket(Serialize(p)) == p across payload
// sizes including the empty and maximum cases.
func TestPacketRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 2, 15, 16, 17, 128, 1500, MaxPayloadSize}

	for _, size := range sizes {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i * 31)
		}

		original := &Packet{
			Sequence:  0x7FFFFFFF,
			Timestamp: 0xDEADBEEFCAFE,
			Payload:   payload,
		}

		data, err := original.Serialize()
		if err != nil {
			t.Fatalf("size %d: Serialize failed: %v", size, err)
		}
		if len(data) != original.TotalSize() {
			t.Fatalf("size %d: TotalSize %d != serialized %d", size, original.TotalSize(), len(data))
		}

		parsed, err := ParsePacket(data)
		if err != nil {
			t.Fatalf("size %d: ParsePacket failed: %v", size, err)
		}
		if parsed.Sequence != original.Sequence {
			t.Errorf("size %d: sequence %d != %d", size, parsed.Sequence, original.Sequence)
		}
		if parsed.Timestamp != original.Timestamp {
			t.Errorf("size %d: timestamp %d != %d", size, parsed.Timestamp, original.Timestamp)
		}
		if !bytes.Equal(parsed.Payload, original.Payload) {
			t.Errorf("size %d: payload mismatch", size)
		}
	}
}

// TestParsePacketZeroPayload covers the total size exactly 16 case.
func TestParsePacketZeroPayload(t *testing.T) {
	data, err := (&Packet{Sequence: 1, Timestamp: 2}).Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if len(data) != HeaderSize {
		t.Fatalf("Expected %d bytes, got %d", HeaderSize, len(data))
	}

	packet, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if len(packet.Payload) != 0 {
		t.Errorf("Expected empty payload, got %d bytes", len(packet.Payload))
	}
}
