package resolver

import (
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/endpoint"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/lending"
	"github.com/roach88/lzrecv/internal/pda"
	"github.com/roach88/lzrecv/internal/testutil"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func canonicalResources(t *testing.T, rs []ir.Resource) []byte {
	t.Helper()
	list := make([]any, len(rs))
	for i, r := range rs {
		list[i] = r
	}
	data, err := ir.MarshalCanonical(list)
	require.NoError(t, err)
	return data
}

func depositEnvelope(nonce uint64) ir.Envelope {
	addr := testutil.EVMAddress(0x01)
	return testutil.Envelope(nonce, codec.EncodeDeposit(codec.Deposit{Amount: 1_000_000, Address: &addr}))
}

func counterEnvelope(nonce uint64) ir.Envelope {
	return testutil.Envelope(nonce, codec.EncodeCounter(codec.OpIncrement, 42))
}

func TestResolveCounterGolden(t *testing.T) {
	rs, err := Resolve(testutil.Config(), codec.VariantCounter, counterEnvelope(1))
	require.NoError(t, err)
	require.Len(t, rs, BaseLen)

	newGoldie(t).Assert(t, "resolve_counter", canonicalResources(t, rs))
}

func TestResolveDepositGolden(t *testing.T) {
	rs, err := Resolve(testutil.Config(), codec.VariantDeposit, depositEnvelope(7))
	require.NoError(t, err)
	require.Len(t, rs, DepositLen)

	newGoldie(t).Assert(t, "resolve_deposit", canonicalResources(t, rs))
}

func TestResolveOrder(t *testing.T) {
	cfg := testutil.Config()
	env := depositEnvelope(7)

	rs, err := Resolve(cfg, codec.VariantDeposit, env)
	require.NoError(t, err)

	peer, err := pda.Peer(cfg.ProgramID, cfg.Store, env.SrcEID)
	require.NoError(t, err)
	assert.Equal(t, ir.Writable(cfg.Store), rs[PosStore])
	assert.Equal(t, ir.ReadOnly(peer.PublicKey), rs[PosPeer])

	clearAccts, err := endpoint.New(cfg.EndpointProgram).AccountsForClear(cfg.Store, env.SrcEID, env.Sender, env.Nonce)
	require.NoError(t, err)
	assert.Equal(t, clearAccts, rs[PosClearStart:PosClearEnd])

	prog, err := lending.ProgramAccounts(cfg)
	require.NoError(t, err)
	assert.Equal(t, prog, rs[PosProgram:])
	assert.Len(t, rs[PosProgram:], 18)
}

func TestResolveDeterministic(t *testing.T) {
	cfg := testutil.Config()
	env := depositEnvelope(3)

	first, err := Resolve(cfg, codec.VariantDeposit, env)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Resolve(cfg, codec.VariantDeposit, env)
		require.NoError(t, err)
		assert.Equal(t, canonicalResources(t, first), canonicalResources(t, again))
	}
}

func TestResolveDepositVariantReservesLendingForMalformedBody(t *testing.T) {
	rs, err := Resolve(testutil.Config(), codec.VariantDeposit, testutil.Envelope(1, []byte{1, 2}))
	require.NoError(t, err)
	assert.Len(t, rs, DepositLen)
}

func TestResolveCounterVariantNeverAddsLending(t *testing.T) {
	for _, body := range [][]byte{nil, {0x09}, codec.EncodeAck(1)} {
		rs, err := Resolve(testutil.Config(), codec.VariantCounter, testutil.Envelope(1, body))
		require.NoError(t, err)
		assert.Len(t, rs, BaseLen)
	}
}

func TestResolveVariesByNonce(t *testing.T) {
	cfg := testutil.Config()
	a, err := Resolve(cfg, codec.VariantCounter, counterEnvelope(1))
	require.NoError(t, err)
	b, err := Resolve(cfg, codec.VariantCounter, counterEnvelope(2))
	require.NoError(t, err)

	assert.Equal(t, a[:PosClearStart+4], b[:PosClearStart+4])
	assert.NotEqual(t, a[PosClearStart+4], b[PosClearStart+4], "payload hash account is per nonce")
}

func TestSplit(t *testing.T) {
	cfg := testutil.Config()
	env := depositEnvelope(1)
	rs, err := Resolve(cfg, codec.VariantDeposit, env)
	require.NoError(t, err)

	l, err := Split(codec.VariantDeposit, env.Message, rs)
	require.NoError(t, err)
	assert.Equal(t, rs[0], l.Store)
	assert.Len(t, l.Clear, endpoint.ClearAccountsLen)
	assert.Len(t, l.Program, lending.ProgramAccountsLen)

	_, err = Split(codec.VariantDeposit, env.Message, rs[:BaseLen])
	assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidAccount))

	_, err = Split(codec.VariantDeposit, env.Message, append(rs, rs[0]))
	assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidAccount))
}

func TestInfo(t *testing.T) {
	cfg := testutil.Config()
	info, err := Info(cfg)
	require.NoError(t, err)

	rt, err := pda.ReceiveTypes(cfg.ProgramID, cfg.Store)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), info.Version)
	assert.Equal(t, []solana.PublicKey{cfg.Store, rt.PublicKey, cfg.LookupTable}, info.Accounts)
}

func testTables(cfg ir.Config) []LookupTable {
	l := cfg.Lending
	return []LookupTable{
		{
			Key: cfg.LookupTable,
			Addresses: []solana.PublicKey{
				l.Program, cfg.Mint, l.Admin, l.Lending, l.FTokenMint,
				l.SupplyTokenReservesLiquidity, l.LendingSupplyPositionOnLiquidity,
				l.RateModel, l.Vault, l.Liquidity, l.LiquidityProgram, l.RewardsRateModel,
				cfg.TokenProgram, cfg.AssociatedTokenProgram, cfg.SystemProgram,
			},
		},
		{
			Key:       testutil.Key("endpoint-table"),
			Addresses: []solana.PublicKey{cfg.EndpointProgram, cfg.Mint},
		},
	}
}

func TestResolveV2Golden(t *testing.T) {
	cfg := testutil.Config()
	plan, err := ResolveV2(cfg, codec.VariantDeposit, depositEnvelope(7), testTables(cfg))
	require.NoError(t, err)

	data, err := json.Marshal(plan)
	require.NoError(t, err)
	newGoldie(t).Assert(t, "resolve_v2_deposit", data)
}

func TestResolveV2PreservesOrder(t *testing.T) {
	cfg := testutil.Config()
	env := depositEnvelope(7)
	tables := testTables(cfg)

	plan, err := ResolveV2(cfg, codec.VariantDeposit, env, tables)
	require.NoError(t, err)
	require.Len(t, plan.Instructions, 1)
	assert.Equal(t, uint8(ExecutionContextVersion), plan.ContextVersion)
	assert.Equal(t, []solana.PublicKey{cfg.LookupTable, testutil.Key("endpoint-table")}, plan.LookupTables)

	expanded, err := Decompress(plan.Instructions[0].Accounts, tables)
	require.NoError(t, err)

	rs, err := Resolve(cfg, codec.VariantDeposit, env)
	require.NoError(t, err)
	require.Len(t, expanded, len(rs))
	for i := range rs {
		assert.Equal(t, rs[i].PublicKey, expanded[i].PublicKey, "position %d", i)
		assert.Equal(t, rs[i].IsWritable, expanded[i].IsWritable, "position %d", i)
	}
}

func TestCompressFirstTableWins(t *testing.T) {
	cfg := testutil.Config()
	refs := Compress([]ir.Resource{ir.ReadOnly(cfg.Mint)}, testTables(cfg))
	require.NotNil(t, refs[0].Locator.Table)
	assert.Equal(t, TableIndex{Table: 0, Index: 1}, *refs[0].Locator.Table)
}

func TestCompressWithoutTables(t *testing.T) {
	cfg := testutil.Config()
	rs, err := Resolve(cfg, codec.VariantCounter, counterEnvelope(1))
	require.NoError(t, err)

	refs := Compress(rs, nil)
	for i, ref := range refs {
		require.NotNil(t, ref.Locator.Address, "position %d", i)
		assert.Equal(t, rs[i].PublicKey, *ref.Locator.Address)
	}
}

func TestDecompressRejectsBadIndex(t *testing.T) {
	_, err := Decompress([]AccountRef{{Locator: AddressLocator{Table: &TableIndex{Table: 3}}}}, nil)
	assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidAccount))

	_, err = Decompress([]AccountRef{{}}, nil)
	assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidAccount))
}
