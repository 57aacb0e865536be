package ir

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Bytes32 is a fixed 32-byte remote value (sender address, message guid,
// correlation id). Text form is 0x-prefixed lowercase hex.
type Bytes32 [32]byte

// Address20 is a remote-chain native (EVM) address.
type Address20 [20]byte

// HexBytes is a variable-length byte string with 0x-hex text form.
type HexBytes []byte

func (b Bytes32) String() string { return "0x" + hex.EncodeToString(b[:]) }

// MarshalText implements encoding.TextMarshaler.
func (b Bytes32) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bytes32) UnmarshalText(text []byte) error {
	return decodeFixed(string(text), b[:])
}

// IsZero reports whether every byte is zero.
func (b Bytes32) IsZero() bool { return b == Bytes32{} }

func (a Address20) String() string { return "0x" + hex.EncodeToString(a[:]) }

// MarshalText implements encoding.TextMarshaler.
func (a Address20) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address20) UnmarshalText(text []byte) error {
	return decodeFixed(string(text), a[:])
}

// Address20FromBytes32 returns the low 20 bytes of a left-padded 32-byte
// remote address. EVM senders arrive padded this way.
func Address20FromBytes32(b Bytes32) Address20 {
	var a Address20
	copy(a[:], b[12:])
	return a
}

// ParseAddress20 parses a 0x-prefixed or bare 40 character hex address.
func ParseAddress20(s string) (Address20, error) {
	var a Address20
	err := a.UnmarshalText([]byte(s))
	return a, err
}

// ParseBytes32 parses a 0x-prefixed or bare 64 character hex value.
func ParseBytes32(s string) (Bytes32, error) {
	var b Bytes32
	err := b.UnmarshalText([]byte(s))
	return b, err
}

func (h HexBytes) String() string { return "0x" + hex.EncodeToString(h) }

// MarshalText implements encoding.TextMarshaler.
func (h HexBytes) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HexBytes) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	*h = raw
	return nil
}

func decodeFixed(s string, dst []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("decode hex: got %d bytes, want %d", len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}
