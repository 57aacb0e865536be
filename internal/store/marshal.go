package store

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/roach88/lzrecv/internal/ir"
)

// u64 stores an unsigned 64-bit value as its INTEGER bit pattern.
// The sqlite driver rejects uint64 values with the high bit set.
func u64(v uint64) int64 { return int64(v) }

// fromU64 reverses u64.
func fromU64(v int64) uint64 { return uint64(v) }

// marshalResources serializes a resource list to canonical JSON.
func marshalResources(rs []ir.Resource) (string, error) {
	arr := make([]any, len(rs))
	for i, r := range rs {
		arr[i] = r
	}
	b, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal resources: %w", err)
	}
	return string(b), nil
}

// unmarshalResources parses a resource list written by marshalResources.
func unmarshalResources(s string) ([]ir.Resource, error) {
	var rs []ir.Resource
	if err := json.Unmarshal([]byte(s), &rs); err != nil {
		return nil, fmt.Errorf("unmarshal resources: %w", err)
	}
	if rs == nil {
		rs = []ir.Resource{}
	}
	return rs, nil
}

// marshalEnvelope serializes an envelope, extra data included, for the
// inbound log.
func marshalEnvelope(e ir.Envelope) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(b), nil
}

func unmarshalEnvelope(s string) (ir.Envelope, error) {
	var e ir.Envelope
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return ir.Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return e, nil
}

// scanBytes32 copies a 32-byte BLOB column into a Bytes32.
func scanBytes32(raw []byte, dst *ir.Bytes32, column string) error {
	if len(raw) != len(dst) {
		return fmt.Errorf("%s: got %d bytes, want %d", column, len(raw), len(dst))
	}
	copy(dst[:], raw)
	return nil
}

// scanAddress20 copies a 20-byte BLOB column into an Address20.
func scanAddress20(raw []byte, dst *ir.Address20, column string) error {
	if len(raw) != len(dst) {
		return fmt.Errorf("%s: got %d bytes, want %d", column, len(raw), len(dst))
	}
	copy(dst[:], raw)
	return nil
}

// scanPublicKey copies a 32-byte BLOB column into a public key.
func scanPublicKey(raw []byte, column string) (solana.PublicKey, error) {
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("%s: got %d bytes, want %d", column, len(raw), solana.PublicKeyLength)
	}
	return solana.PublicKeyFromBytes(raw), nil
}
