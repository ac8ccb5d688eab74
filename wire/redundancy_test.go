package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestRedundancySymbolRoundTrip(t *testing.T) {
	original := &RedundancySymbol{
		Group:   12345,
		Index:   1,
		Symbols: 2,
		Span:    5,
		Kind:    KindParity,
		Body:    []byte{0x10, 0x20, 0x30},
	}

	data, err := original.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if len(data) != SymbolHeaderSize+len(original.Body) {
		t.Fatalf("Expected %d bytes, got %d", SymbolHeaderSize+len(original.Body), len(data))
	}

	parsed, err := ParseRedundancySymbol(data)
	if err != nil {
		t.Fatalf("ParseRedundancySymbol failed: %v", err)
	}
	if parsed.Group != original.Group || parsed.Index != original.Index ||
		parsed.Symbols != original.Symbols || parsed.Span != original.Span ||
		parsed.Kind != original.Kind {
		t.Errorf("Header mismatch: %+v", parsed)
	}
	if !bytes.Equal(parsed.Body, original.Body) {
		t.Error("Body mismatch")
	}
}

func TestRedundancySymbolRejection(t *testing.T) {
	good, err := (&RedundancySymbol{Group: 1, Index: 0, Symbols: 1, Span: 5, Kind: KindCopy, Body: []byte{1}}).Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	badKind := append([]byte(nil), good...)
	badKind[7] = 0x7F

	badIndex := append([]byte(nil), good...)
	badIndex[4] = 9

	zeroSpan := append([]byte(nil), good...)
	zeroSpan[6] = 0

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "short input", data: make([]byte, SymbolHeaderSize-1), wantErr: ErrSymbolTooShort},
		{name: "unknown kind", data: badKind, wantErr: ErrSymbolInvalid},
		{name: "index past symbol count", data: badIndex, wantErr: ErrSymbolInvalid},
		{name: "zero span", data: zeroSpan, wantErr: ErrSymbolInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRedundancySymbol(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRedundancySymbolSerializeValidation(t *testing.T) {
	tests := []struct {
		name   string
		symbol *RedundancySymbol
	}{
		{name: "zero span", symbol: &RedundancySymbol{Symbols: 1, Kind: KindParity}},
		{name: "zero symbols", symbol: &RedundancySymbol{Span: 5, Kind: KindParity}},
		{name: "index out of range", symbol: &RedundancySymbol{Span: 5, Symbols: 1, Index: 1, Kind: KindParity}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.symbol.Serialize(); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestSymbolKindString(t *testing.T) {
	if KindParity.String() != "parity" || KindCopy.String() != "copy" {
		t.Error("Kind names wrong")
	}
	if SymbolKind(0x55).String() != "unknown" {
		t.Error("Unknown kind should stringify as unknown")
	}
}
