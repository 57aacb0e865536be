package pda

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lzrecv/internal/ir"
)

var testProgram = solana.MustPublicKeyFromBase58("FsTdYyPbDHqgmPvWiBu3V6Y6Ez1bPHMEiXzFb6YVnjrf")

func TestStoreDeterministic(t *testing.T) {
	a, err := Store(testProgram)
	require.NoError(t, err)
	b, err := Store(testProgram)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.False(t, a.PublicKey.IsZero())
}

func TestPeerVariesBySourceChain(t *testing.T) {
	store, err := Store(testProgram)
	require.NoError(t, err)

	p1, err := Peer(testProgram, store.PublicKey, 30101)
	require.NoError(t, err)
	p2, err := Peer(testProgram, store.PublicKey, 30184)
	require.NoError(t, err)
	assert.NotEqual(t, p1.PublicKey, p2.PublicKey)
}

func TestPeerMatchesManualDerivation(t *testing.T) {
	store, err := Store(testProgram)
	require.NoError(t, err)

	got, err := Peer(testProgram, store.PublicKey, 40245)
	require.NoError(t, err)

	want, bump, err := solana.FindProgramAddress([][]byte{
		[]byte("Peer"), store.PublicKey[:], {0x00, 0x00, 0x9d, 0x35},
	}, testProgram)
	require.NoError(t, err)
	assert.Equal(t, want, got.PublicKey)
	assert.Equal(t, bump, got.Bump)
}

func TestLedgerVariesBySender(t *testing.T) {
	a, err := Ledger(testProgram, ir.Address20{1})
	require.NoError(t, err)
	b, err := Ledger(testProgram, ir.Address20{2})
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicKey, b.PublicKey)
}

func TestTokenHoldingMatchesAssociatedTokenAddress(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	mint := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	got, err := TokenHolding(solana.SPLAssociatedTokenAccountProgramID, owner, solana.TokenProgramID, mint)
	require.NoError(t, err)

	want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, want, got.PublicKey)
}

func TestVerifySigner(t *testing.T) {
	store, err := Store(testProgram)
	require.NoError(t, err)

	require.NoError(t, VerifySigner(testProgram, store.PublicKey, StoreSignerSeeds(store.Bump)))

	err = VerifySigner(testProgram, solana.SystemProgramID, StoreSignerSeeds(store.Bump))
	assert.True(t, ir.IsCode(err, ir.ErrCodeSignerMismatch))
}

func TestSeedEncodings(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0x75, 0x95}, U32BE(30101))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 7}, U64BE(7))
}
