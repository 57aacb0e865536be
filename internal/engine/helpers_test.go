package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/resolver"
	"github.com/roach88/lzrecv/internal/store"
	"github.com/roach88/lzrecv/internal/testutil"
)

// testStart is the first timestamp the deterministic clock hands out,
// minus one step.
const testStart int64 = 1_700_000_000

// newTestStore opens a file-backed store seeded with the fixture
// configuration and trusted peer.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.PutConfig(ctx, testutil.Config()))
	require.NoError(t, s.PutPeer(ctx, testutil.Peer()))
	return s
}

// newTestEngine creates an engine over a seeded store with a
// deterministic clock.
func newTestEngine(t *testing.T, variant codec.Variant, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	base := []Option{WithClock(testutil.NewDeterministicClock(testStart, 1))}
	return New(s, variant, append(base, opts...)...), s
}

// request resolves env against the fixture configuration.
func request(t *testing.T, variant codec.Variant, env ir.Envelope) Request {
	t.Helper()
	resources, err := resolver.Resolve(testutil.Config(), variant, env)
	require.NoError(t, err)
	return Request{Envelope: env, Resources: resources}
}

func increment(v uint64) []byte {
	return codec.EncodeCounter(codec.OpIncrement, v)
}

func deposit(amount uint64) []byte {
	return codec.EncodeDeposit(codec.Deposit{Amount: amount})
}

// originator is the ledger key of deposits from the fixture peer.
func originator() ir.Address20 {
	return ir.Address20FromBytes32(testutil.PeerAddress())
}

func mustAppState(t *testing.T, s *store.Store) ir.AppState {
	t.Helper()
	st, err := s.AppState(context.Background())
	require.NoError(t, err)
	return st
}
