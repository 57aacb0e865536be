package endpoint

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lzrecv/internal/ir"
)

type memSlots struct {
	slots    map[ir.SlotKey]ir.SlotRecord
	verified map[ir.SlotKey]ir.Bytes32
	outbound []ir.OutboundMessage
}

func newMemSlots() *memSlots {
	return &memSlots{
		slots:    map[ir.SlotKey]ir.SlotRecord{},
		verified: map[ir.SlotKey]ir.Bytes32{},
	}
}

func (m *memSlots) ClaimSlot(_ context.Context, rec ir.SlotRecord) error {
	if _, ok := m.slots[rec.Key]; ok {
		return ir.ErrSlotConsumed
	}
	m.slots[rec.Key] = rec
	return nil
}

func (m *memSlots) FailSlot(_ context.Context, key ir.SlotKey) error {
	rec, ok := m.slots[key]
	if !ok || rec.Status != ir.SlotConsumed {
		return errors.New("no consumed slot")
	}
	rec.Status = ir.SlotFailed
	m.slots[key] = rec
	return nil
}

func (m *memSlots) VerifiedPayloadHash(_ context.Context, key ir.SlotKey) (ir.Bytes32, bool, error) {
	h, ok := m.verified[key]
	return h, ok, nil
}

func (m *memSlots) RecordVerifiedPayload(_ context.Context, key ir.SlotKey, hash ir.Bytes32) error {
	m.verified[key] = hash
	return nil
}

func (m *memSlots) AppendOutbound(_ context.Context, msg ir.OutboundMessage) (ir.OutboundMessage, error) {
	msg.Seq = int64(len(m.outbound) + 1)
	m.outbound = append(m.outbound, msg)
	return msg, nil
}

var receiver = solana.MustPublicKeyFromBase58("FsTdYyPbDHqgmPvWiBu3V6Y6Ez1bPHMEiXzFb6YVnjrf")

func testParams() ClearParams {
	var sender, guid ir.Bytes32
	sender[31] = 0xAA
	guid[0] = 0x01
	return ClearParams{
		Receiver: receiver,
		SrcEID:   30101,
		Sender:   sender,
		Nonce:    1,
		GUID:     guid,
		Message:  []byte("hello"),
		At:       100,
	}
}

func TestAccountsForClearLayout(t *testing.T) {
	ep := New(DefaultProgramID)
	p := testParams()

	accts, err := ep.AccountsForClear(p.Receiver, p.SrcEID, p.Sender, p.Nonce)
	require.NoError(t, err)
	require.Len(t, accts, ClearAccountsLen)

	assert.Equal(t, DefaultProgramID, accts[0].PublicKey)
	assert.Equal(t, receiver, accts[1].PublicKey)
	assert.Equal(t, DefaultProgramID, accts[7].PublicKey)

	writable := []bool{false, false, false, true, true, true, false, false}
	for i, r := range accts {
		assert.Equal(t, writable[i], r.IsWritable, "position %d", i)
		assert.False(t, r.IsSigner, "position %d", i)
	}
}

func TestAccountsForClearVariesByNonce(t *testing.T) {
	ep := New(DefaultProgramID)
	p := testParams()

	a, err := ep.AccountsForClear(p.Receiver, p.SrcEID, p.Sender, 1)
	require.NoError(t, err)
	b, err := ep.AccountsForClear(p.Receiver, p.SrcEID, p.Sender, 2)
	require.NoError(t, err)

	assert.Equal(t, a[3], b[3], "nonce account is per pathway")
	assert.NotEqual(t, a[4], b[4], "payload hash account is per nonce")
}

func TestClearConsumesOnce(t *testing.T) {
	ctx := context.Background()
	ep := New(DefaultProgramID)
	slots := newMemSlots()
	p := testParams()

	accts, err := ep.AccountsForClear(p.Receiver, p.SrcEID, p.Sender, p.Nonce)
	require.NoError(t, err)

	hash, err := ep.Clear(ctx, slots, accts, p)
	require.NoError(t, err)
	assert.Equal(t, PayloadHash(p.GUID, p.Message), hash)
	assert.Equal(t, ir.SlotConsumed, slots.slots[p.key()].Status)

	_, err = ep.Clear(ctx, slots, accts, p)
	assert.ErrorIs(t, err, ir.ErrSlotConsumed)
}

func TestClearRejectsMismatchedResources(t *testing.T) {
	ctx := context.Background()
	ep := New(DefaultProgramID)
	slots := newMemSlots()
	p := testParams()

	accts, err := ep.AccountsForClear(p.Receiver, p.SrcEID, p.Sender, p.Nonce)
	require.NoError(t, err)

	swapped := append([]ir.Resource(nil), accts...)
	swapped[3], swapped[4] = swapped[4], swapped[3]
	_, err = ep.Clear(ctx, slots, swapped, p)
	assert.ErrorIs(t, err, ir.ErrResourceMismatch)

	_, err = ep.Clear(ctx, slots, accts[:7], p)
	assert.ErrorIs(t, err, ir.ErrResourceMismatch)

	flipped := append([]ir.Resource(nil), accts...)
	flipped[5].IsWritable = false
	_, err = ep.Clear(ctx, slots, flipped, p)
	assert.ErrorIs(t, err, ir.ErrResourceMismatch)

	assert.Empty(t, slots.slots, "rejected clears must not claim the slot")
}

func TestClearChecksVerifiedPayload(t *testing.T) {
	ctx := context.Background()
	ep := New(DefaultProgramID)
	slots := newMemSlots()
	p := testParams()

	accts, err := ep.AccountsForClear(p.Receiver, p.SrcEID, p.Sender, p.Nonce)
	require.NoError(t, err)

	require.NoError(t, ep.Verify(ctx, slots, p.key(), PayloadHash(p.GUID, []byte("other"))))
	_, err = ep.Clear(ctx, slots, accts, p)
	assert.ErrorIs(t, err, ir.ErrPayloadHashMismatch)

	require.NoError(t, ep.Verify(ctx, slots, p.key(), PayloadHash(p.GUID, p.Message)))
	_, err = ep.Clear(ctx, slots, accts, p)
	assert.NoError(t, err)
}

func TestBurnSpendsSlotAsFailed(t *testing.T) {
	ctx := context.Background()
	ep := New(DefaultProgramID)
	slots := newMemSlots()
	p := testParams()

	accts, err := ep.AccountsForClear(p.Receiver, p.SrcEID, p.Sender, p.Nonce)
	require.NoError(t, err)

	// Only a consumed slot can be burned.
	assert.Error(t, ep.Burn(ctx, slots, p))

	_, err = ep.Clear(ctx, slots, accts, p)
	require.NoError(t, err)
	require.NoError(t, ep.Burn(ctx, slots, p))
	assert.Equal(t, ir.SlotFailed, slots.slots[p.key()].Status)

	_, err = ep.Clear(ctx, slots, accts, p)
	assert.ErrorIs(t, err, ir.ErrSlotConsumed)
	assert.Error(t, ep.Burn(ctx, slots, p), "a failed slot is not burned twice")
}

func TestPayloadHashIsKeccak(t *testing.T) {
	// keccak256 of 32 zero bytes, the hash of an all-zero guid with an empty body.
	got := PayloadHash(ir.Bytes32{}, nil)
	assert.Equal(t, "290decd9548b62a8d60345a988386fc84ba6bc95484008f6362f93160ef3e563", hex.EncodeToString(got[:]))

	assert.Equal(t, PayloadHash(ir.Bytes32{1}, []byte("x")), PayloadHash(ir.Bytes32{1}, []byte("x")))
	assert.NotEqual(t, PayloadHash(ir.Bytes32{1}, []byte("x")), PayloadHash(ir.Bytes32{2}, []byte("x")))
}

func TestSendCompose(t *testing.T) {
	ctx := context.Background()
	ep := New(DefaultProgramID)
	out := newMemSlots()

	msg, err := ep.SendCompose(ctx, out, ComposeParams{
		From: receiver, To: receiver, GUID: ir.Bytes32{7}, Index: 0, Message: []byte{0x02, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, ir.HexBytes{0x02, 1}, msg.Message)
	assert.Len(t, out.outbound, 1)
}
