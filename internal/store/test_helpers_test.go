package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/lzrecv/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func appState(text string, counter uint64) ir.AppState {
	return ir.AppState{Text: text, Counter: counter}
}

// addr returns a test address whose last byte is b.
func addr(b byte) ir.Address20 {
	var a ir.Address20
	a[0] = 0xE0
	a[19] = b
	return a
}

// b32 returns a 32-byte value filled with b.
func b32(b byte) ir.Bytes32 {
	var v ir.Bytes32
	for i := range v {
		v[i] = b
	}
	return v
}

// depositEvent creates a deposit event for the sender addr(sender).
func depositEvent(sender byte, amount uint64) ir.DepositEvent {
	return ir.DepositEvent{
		GUID:         b32(sender),
		Sender:       addr(sender),
		Amount:       amount,
		NewTotal:     amount,
		DepositIndex: 1,
		Timestamp:    1700000000,
	}
}
