// Package pda derives the receiver's program-derived addresses.
//
// Every derivation is deterministic: the same seeds and program always
// yield the same address and bump. Addresses are found with
// solana.FindProgramAddress, which searches bumps from 255 downward.
package pda

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/roach88/lzrecv/internal/ir"
)

// Seed prefixes under the receiver program.
const (
	SeedStore        = "Store"
	SeedPeer         = "Peer"
	SeedReceiveTypes = "LzReceiveTypes"
	SeedLedger       = "UserBalance"
)

// Address is a derived address with its bump.
type Address struct {
	PublicKey solana.PublicKey `json:"pubkey"`
	Bump      uint8            `json:"bump"`
}

func find(seeds [][]byte, program solana.PublicKey, what string) (Address, error) {
	pk, bump, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return Address{}, fmt.Errorf("derive %s address: %w", what, err)
	}
	return Address{PublicKey: pk, Bump: bump}, nil
}

// Store derives the module authority. It owns the token holdings and signs
// external calls.
func Store(program solana.PublicKey) (Address, error) {
	return find([][]byte{[]byte(SeedStore)}, program, "store")
}

// Peer derives the peer record address for a source chain.
func Peer(program, store solana.PublicKey, srcEID uint32) (Address, error) {
	return find([][]byte{[]byte(SeedPeer), store.Bytes(), U32BE(srcEID)}, program, "peer")
}

// ReceiveTypes derives the resolver's context account.
func ReceiveTypes(program, store solana.PublicKey) (Address, error) {
	return find([][]byte{[]byte(SeedReceiveTypes), store.Bytes()}, program, "receive types")
}

// Ledger derives the per-sender ledger record address.
func Ledger(program solana.PublicKey, sender ir.Address20) (Address, error) {
	return find([][]byte{[]byte(SeedLedger), sender[:]}, program, "ledger")
}

// TokenHolding derives owner's associated token account for mint under the
// given token program.
func TokenHolding(associatedTokenProgram, owner, tokenProgram, mint solana.PublicKey) (Address, error) {
	return find([][]byte{owner.Bytes(), tokenProgram.Bytes(), mint.Bytes()}, associatedTokenProgram, "token holding")
}

// StoreSignerSeeds returns the seeds, bump included, that sign for the
// store authority.
func StoreSignerSeeds(bump uint8) [][]byte {
	return [][]byte{[]byte(SeedStore), {bump}}
}

// VerifySigner reports whether seeds derive signer under program. This is
// the address-ownership check for signed external calls.
func VerifySigner(program, signer solana.PublicKey, seeds [][]byte) error {
	derived, err := solana.CreateProgramAddress(seeds, program)
	if err != nil {
		return ir.Errorf(ir.ErrCodeSignerMismatch, "seeds do not derive a program address: %v", err)
	}
	if !derived.Equals(signer) {
		return ir.NewError(ir.ErrCodeSignerMismatch, "seeds derive a different address",
			"expected", signer.String(), "derived", derived.String())
	}
	return nil
}

// U32BE encodes v big-endian, the byte order of every numeric seed.
func U32BE(v uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}

// U64BE encodes v big-endian.
func U64BE(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}
