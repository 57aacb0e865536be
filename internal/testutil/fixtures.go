package testutil

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"

	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/pda"
)

// SrcEID is the source chain used by fixtures.
const SrcEID uint32 = 30184

// Key returns a deterministic address for name. Keys are arbitrary 32-byte
// values, which is all the receiver needs from non-derived accounts.
func Key(name string) solana.PublicKey {
	sum := sha256.Sum256([]byte("lzrecv/test/" + name))
	return solana.PublicKeyFromBytes(sum[:])
}

// ProgramID is the receiver program used by fixtures.
var ProgramID = Key("receiver-program")

// Config returns a complete configuration whose store is the real derived
// authority of ProgramID.
func Config() ir.Config {
	store, err := pda.Store(ProgramID)
	if err != nil {
		panic(err)
	}
	return ir.Config{
		ProgramID:              ProgramID,
		Store:                  store.PublicKey,
		StoreBump:              store.Bump,
		Admin:                  Key("admin"),
		EndpointProgram:        Key("endpoint-program"),
		Mint:                   Key("usdc-mint"),
		TokenProgram:           solana.TokenProgramID,
		AssociatedTokenProgram: solana.SPLAssociatedTokenAccountProgramID,
		SystemProgram:          solana.SystemProgramID,
		Lending: ir.LendingAccounts{
			Program:                          Key("lending-program"),
			LiquidityProgram:                 Key("liquidity-program"),
			Admin:                            Key("lending-admin"),
			Lending:                          Key("lending"),
			FTokenMint:                       Key("f-token-mint"),
			SupplyTokenReservesLiquidity:     Key("supply-token-reserves-liquidity"),
			LendingSupplyPositionOnLiquidity: Key("lending-supply-position-on-liquidity"),
			RateModel:                        Key("rate-model"),
			Vault:                            Key("vault"),
			Liquidity:                        Key("liquidity"),
			RewardsRateModel:                 Key("rewards-rate-model"),
		},
		LookupTable: Key("lookup-table"),
	}
}

// EVMAddress returns a 20-byte address ending in b.
func EVMAddress(b byte) ir.Address20 {
	var a ir.Address20
	a[0] = 0xE0
	a[19] = b
	return a
}

// PaddedSender left-pads a 20-byte address to the 32-byte sender form.
func PaddedSender(a ir.Address20) ir.Bytes32 {
	var out ir.Bytes32
	copy(out[12:], a[:])
	return out
}

// PeerAddress is the trusted sender for SrcEID.
func PeerAddress() ir.Bytes32 {
	return PaddedSender(EVMAddress(0xAA))
}

// Peer returns the trusted peer record for SrcEID.
func Peer() ir.Peer {
	return ir.Peer{SrcEID: SrcEID, Address: PeerAddress()}
}

// GUID returns a deterministic message id for n.
func GUID(n uint64) ir.Bytes32 {
	sum := sha256.Sum256([]byte{byte(n >> 56), byte(n >> 48), byte(n >> 40), byte(n >> 32), byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	return ir.Bytes32(sum)
}

// Envelope returns an envelope from the trusted peer.
func Envelope(nonce uint64, message []byte) ir.Envelope {
	return ir.Envelope{
		SrcEID:  SrcEID,
		Sender:  PeerAddress(),
		Nonce:   nonce,
		GUID:    GUID(nonce),
		Message: message,
	}
}
