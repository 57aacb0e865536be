package lending

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/testutil"
)

func TestDiscriminatorIsAnchorSighash(t *testing.T) {
	sum := sha256.Sum256([]byte("global:deposit"))
	assert.Equal(t, sum[:8], DepositDiscriminator[:])
}

func TestDepositLayoutFlags(t *testing.T) {
	mutable := map[int]bool{0: true, 1: true, 2: true, 5: true, 6: true, 7: true, 8: true, 10: true, 11: true, 12: true}
	for i, slot := range DepositLayout {
		assert.Equal(t, i == 0, slot.Signer, "signer flag at %d", i)
		assert.Equal(t, mutable[i], slot.Writable, "writable flag at %d", i)
	}
}

func TestProgramAccountsOrder(t *testing.T) {
	cfg := testutil.Config()

	accts, err := ProgramAccounts(cfg)
	require.NoError(t, err)
	require.Len(t, accts, ProgramAccountsLen)

	assert.Equal(t, cfg.Store, accts[PosSigner].PublicKey)
	assert.Equal(t, cfg.Mint, accts[PosMint].PublicKey)
	assert.Equal(t, cfg.Lending.Admin, accts[PosLendingAdmin].PublicKey)
	assert.Equal(t, cfg.Lending.RewardsRateModel, accts[PosRewardsRateModel].PublicKey)
	assert.Equal(t, cfg.TokenProgram, accts[PosTokenProgram].PublicKey)
	assert.Equal(t, cfg.AssociatedTokenProgram, accts[PosAssociatedTokenProgram].PublicKey)
	assert.Equal(t, cfg.SystemProgram, accts[PosSystemProgram].PublicKey)
	assert.Equal(t, cfg.Lending.Program, accts[PosLendingProgram].PublicKey)

	for i, r := range accts {
		assert.False(t, r.IsSigner, "resolver entries never sign (position %d)", i)
	}
	assert.False(t, accts[PosLendingProgram].IsWritable)
	assert.NotEqual(t, accts[PosDepositorTokenAccount].PublicKey, accts[PosRecipientTokenAccount].PublicKey)
}

func TestValidateAgainst(t *testing.T) {
	cfg := testutil.Config()
	accts, err := ProgramAccounts(cfg)
	require.NoError(t, err)
	require.NoError(t, ValidateAgainst(cfg, accts))

	for _, pos := range []int{PosMint, PosTokenProgram, PosAssociatedTokenProgram, PosLendingProgram} {
		bad := append([]ir.Resource(nil), accts...)
		bad[pos].PublicKey = solana.SysVarRentPubkey
		err := ValidateAgainst(cfg, bad)
		assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidMessageType), "position %d: %v", pos, err)
	}

	// Other positions are not part of the integrity check.
	other := append([]ir.Resource(nil), accts...)
	other[PosVault].PublicKey = solana.SysVarRentPubkey
	assert.NoError(t, ValidateAgainst(cfg, other))

	assert.True(t, ir.IsCode(ValidateAgainst(cfg, accts[:5]), ir.ErrCodeInvalidAccount))
}

func TestCheckProgramAccounts(t *testing.T) {
	cfg := testutil.Config()
	accts, err := ProgramAccounts(cfg)
	require.NoError(t, err)
	require.NoError(t, CheckProgramAccounts(cfg, accts))

	// Flags are not part of the comparison.
	flipped := append([]ir.Resource(nil), accts...)
	flipped[PosVault].IsWritable = false
	flipped[PosMint].IsSigner = true
	assert.NoError(t, CheckProgramAccounts(cfg, flipped))

	for pos := 0; pos < ProgramAccountsLen; pos++ {
		bad := append([]ir.Resource(nil), accts...)
		bad[pos].PublicKey = solana.SysVarRentPubkey
		err := CheckProgramAccounts(cfg, bad)
		assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidAccount), "position %d: %v", pos, err)
	}

	swapped := append([]ir.Resource(nil), accts...)
	swapped[PosVault], swapped[PosLiquidity] = swapped[PosLiquidity], swapped[PosVault]
	err = CheckProgramAccounts(cfg, swapped)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "program account 10 (vault) does not match")

	assert.True(t, ir.IsCode(CheckProgramAccounts(cfg, accts[:ProgramAccountsLen-1]), ir.ErrCodeInvalidAccount))
}

func TestBuildDeposit(t *testing.T) {
	cfg := testutil.Config()
	accts, err := ProgramAccounts(cfg)
	require.NoError(t, err)

	ix, err := BuildDeposit(accts, 1_000_000)
	require.NoError(t, err)

	assert.Equal(t, cfg.Lending.Program, ix.ProgramID())
	metas := ix.Accounts()
	require.Len(t, metas, DepositAccountsLen)
	assert.True(t, metas[0].IsSigner)
	assert.Equal(t, cfg.Store, metas[0].PublicKey)
	for i := 1; i < DepositAccountsLen; i++ {
		assert.False(t, metas[i].IsSigner, "position %d", i)
	}

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, DepositDataLen)
	assert.Equal(t, DepositDiscriminator[:], data[:8])
	assert.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[8:]))
}

func TestBuildDepositIgnoresSuppliedFlags(t *testing.T) {
	cfg := testutil.Config()
	accts, err := ProgramAccounts(cfg)
	require.NoError(t, err)
	for i := range accts {
		accts[i].IsWritable = true
		accts[i].IsSigner = true
	}

	ix, err := BuildDeposit(accts, 1)
	require.NoError(t, err)
	for i, m := range ix.Accounts() {
		assert.Equal(t, DepositLayout[i].Signer, m.IsSigner, "position %d", i)
		assert.Equal(t, DepositLayout[i].Writable, m.IsWritable, "position %d", i)
	}
}

func TestBuildDepositRejectsWrongLength(t *testing.T) {
	_, err := BuildDeposit(make([]ir.Resource, DepositAccountsLen), 1)
	assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidAccount))
}
