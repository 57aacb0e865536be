// Package endpoint implements the messaging endpoint primitives the
// receiver consumes: the consume-once clear of a sequence slot, the
// compose path used for acknowledgements, and payload verification.
//
// The endpoint owns the replay-protection resources. Their count and order
// are defined here, once, and both the resolver and the engine take them
// from AccountsForClear.
package endpoint

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/sha3"

	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/pda"
)

// DefaultProgramID is the messaging endpoint's program identity.
var DefaultProgramID = solana.MustPublicKeyFromBase58("76y77prsiCMvXMjuoZ5VRrhG5qYBrUMYTE5WgHqgjEn6")

// Seed prefixes under the endpoint program.
const (
	SeedOApp           = "OApp"
	SeedNonce          = "Nonce"
	SeedPayloadHash    = "PayloadHash"
	SeedEndpoint       = "Endpoint"
	SeedEventAuthority = "__event_authority"
)

// ClearAccountsLen is the number of resources AccountsForClear returns.
const ClearAccountsLen = 8

// SlotStore persists spent slots and verified payload hashes. Calls made
// through a transaction commit or roll back with it.
type SlotStore interface {
	ClaimSlot(ctx context.Context, rec ir.SlotRecord) error
	FailSlot(ctx context.Context, key ir.SlotKey) error
	VerifiedPayloadHash(ctx context.Context, key ir.SlotKey) (ir.Bytes32, bool, error)
}

// VerifyStore records verified payload hashes.
type VerifyStore interface {
	RecordVerifiedPayload(ctx context.Context, key ir.SlotKey, hash ir.Bytes32) error
}

// ComposeStore journals outbound compose messages.
type ComposeStore interface {
	AppendOutbound(ctx context.Context, msg ir.OutboundMessage) (ir.OutboundMessage, error)
}

// Endpoint is the consume-once and compose surface for one endpoint
// program.
type Endpoint struct {
	program solana.PublicKey
}

// New returns an Endpoint for program.
func New(program solana.PublicKey) *Endpoint {
	return &Endpoint{program: program}
}

// ProgramID returns the endpoint program identity.
func (e *Endpoint) ProgramID() solana.PublicKey {
	return e.program
}

// AccountsForClear returns the resources required to clear the slot
// (srcEID, sender, nonce) for receiver, in the endpoint's order.
func (e *Endpoint) AccountsForClear(receiver solana.PublicKey, srcEID uint32, sender ir.Bytes32, nonce uint64) ([]ir.Resource, error) {
	oapp, _, err := solana.FindProgramAddress([][]byte{[]byte(SeedOApp), receiver.Bytes()}, e.program)
	if err != nil {
		return nil, fmt.Errorf("derive oapp registry: %w", err)
	}
	nonceAcct, _, err := solana.FindProgramAddress([][]byte{
		[]byte(SeedNonce), receiver.Bytes(), pda.U32BE(srcEID), sender[:],
	}, e.program)
	if err != nil {
		return nil, fmt.Errorf("derive nonce: %w", err)
	}
	payloadHash, _, err := solana.FindProgramAddress([][]byte{
		[]byte(SeedPayloadHash), receiver.Bytes(), pda.U32BE(srcEID), sender[:], pda.U64BE(nonce),
	}, e.program)
	if err != nil {
		return nil, fmt.Errorf("derive payload hash: %w", err)
	}
	settings, _, err := solana.FindProgramAddress([][]byte{[]byte(SeedEndpoint)}, e.program)
	if err != nil {
		return nil, fmt.Errorf("derive endpoint settings: %w", err)
	}
	eventAuthority, _, err := solana.FindProgramAddress([][]byte{[]byte(SeedEventAuthority)}, e.program)
	if err != nil {
		return nil, fmt.Errorf("derive event authority: %w", err)
	}

	return []ir.Resource{
		ir.ReadOnly(e.program),
		ir.ReadOnly(receiver),
		ir.ReadOnly(oapp),
		ir.Writable(nonceAcct),
		ir.Writable(payloadHash),
		ir.Writable(settings),
		ir.ReadOnly(eventAuthority),
		ir.ReadOnly(e.program),
	}, nil
}

// PayloadHash is keccak256(guid || message), the value the endpoint
// verifies before a slot can be cleared.
func PayloadHash(guid ir.Bytes32, message []byte) ir.Bytes32 {
	h := sha3.NewLegacyKeccak256()
	h.Write(guid[:])
	h.Write(message)
	var out ir.Bytes32
	copy(out[:], h.Sum(nil))
	return out
}

// ClearParams identifies the slot to clear and the message it carries.
type ClearParams struct {
	Receiver solana.PublicKey
	SrcEID   uint32
	Sender   ir.Bytes32
	Nonce    uint64
	GUID     ir.Bytes32
	Message  []byte
	At       int64
}

func (p ClearParams) key() ir.SlotKey {
	return ir.SlotKey{Receiver: p.Receiver, SrcEID: p.SrcEID, Sender: p.Sender, Nonce: p.Nonce}
}

// Clear consumes the slot named by p. It rejects a resource list that
// differs from AccountsForClear, checks the message against any verified
// payload hash, then claims the slot. A second clear of the same slot
// fails with ir.ErrSlotConsumed.
func (e *Endpoint) Clear(ctx context.Context, slots SlotStore, accounts []ir.Resource, p ClearParams) (ir.Bytes32, error) {
	if err := e.checkAccounts(accounts, p); err != nil {
		return ir.Bytes32{}, err
	}
	hash, err := e.checkPayload(ctx, slots, p)
	if err != nil {
		return ir.Bytes32{}, err
	}
	if err := slots.ClaimSlot(ctx, ir.SlotRecord{
		Key:         p.key(),
		GUID:        p.GUID,
		PayloadHash: hash,
		Status:      ir.SlotConsumed,
		ConsumedAt:  p.At,
	}); err != nil {
		return ir.Bytes32{}, err
	}
	return hash, nil
}

// Burn marks the slot consumed by Clear(p) as failed. The slot stays
// spent; only its status changes.
func (e *Endpoint) Burn(ctx context.Context, slots SlotStore, p ClearParams) error {
	return slots.FailSlot(ctx, p.key())
}

// Verify records the payload hash verified for a slot. A later Clear of
// that slot must carry a message hashing to the same value.
func (e *Endpoint) Verify(ctx context.Context, store VerifyStore, key ir.SlotKey, hash ir.Bytes32) error {
	return store.RecordVerifiedPayload(ctx, key, hash)
}

func (e *Endpoint) checkAccounts(accounts []ir.Resource, p ClearParams) error {
	want, err := e.AccountsForClear(p.Receiver, p.SrcEID, p.Sender, p.Nonce)
	if err != nil {
		return err
	}
	if len(accounts) != len(want) {
		return ir.Errorf(ir.ErrCodeResourceMismatch,
			"clear requires %d resources, got %d", len(want), len(accounts))
	}
	for i := range want {
		if accounts[i] != want[i] {
			return ir.NewError(ir.ErrCodeResourceMismatch,
				fmt.Sprintf("clear resource %d does not match", i),
				"expected", want[i].PublicKey.String(), "got", accounts[i].PublicKey.String())
		}
	}
	return nil
}

func (e *Endpoint) checkPayload(ctx context.Context, slots SlotStore, p ClearParams) (ir.Bytes32, error) {
	hash := PayloadHash(p.GUID, p.Message)
	verified, ok, err := slots.VerifiedPayloadHash(ctx, p.key())
	if err != nil {
		return ir.Bytes32{}, fmt.Errorf("load verified payload: %w", err)
	}
	if ok && verified != hash {
		return ir.Bytes32{}, ir.NewError(ir.ErrCodePayloadHashMismatch,
			"message does not match verified payload", "verified", verified.String(), "got", hash.String())
	}
	return hash, nil
}

// ComposeParams describes a compose message. Index 0 is the
// acknowledgement slot.
type ComposeParams struct {
	From    solana.PublicKey
	To      solana.PublicKey
	GUID    ir.Bytes32
	Index   uint16
	Message []byte
}

// SendCompose queues a compose message for delivery.
func (e *Endpoint) SendCompose(ctx context.Context, out ComposeStore, p ComposeParams) (ir.OutboundMessage, error) {
	msg, err := out.AppendOutbound(ctx, ir.OutboundMessage{
		GUID:    p.GUID,
		Index:   p.Index,
		From:    p.From,
		To:      p.To,
		Message: append(ir.HexBytes(nil), p.Message...),
	})
	if err != nil {
		return ir.OutboundMessage{}, fmt.Errorf("send compose: %w", err)
	}
	return msg, nil
}
