// Package lending describes the external lending protocol's deposit entry
// point: its discriminator, its fixed account layout and the instruction
// builder. A protocol-side layout change is an edit to this file alone.
package lending

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/pda"
)

// LayoutVersion identifies this descriptor revision.
const LayoutVersion = 1

// DepositDiscriminator selects the deposit entry point:
// sha256("global:deposit")[:8].
var DepositDiscriminator = [8]byte{0xf2, 0x23, 0xc6, 0x89, 0x52, 0xe1, 0xf2, 0xb6}

const (
	// DepositAccountsLen is the number of accounts the deposit call takes.
	DepositAccountsLen = 17

	// ProgramAccountsLen is the number of resources a deposit message adds
	// to the resource list: the call's accounts plus the lending program.
	ProgramAccountsLen = DepositAccountsLen + 1

	// DepositDataLen is discriminator plus little-endian amount.
	DepositDataLen = 16
)

// Positions within the program account list.
const (
	PosSigner = iota
	PosDepositorTokenAccount
	PosRecipientTokenAccount
	PosMint
	PosLendingAdmin
	PosLending
	PosFTokenMint
	PosSupplyTokenReservesLiquidity
	PosLendingSupplyPositionOnLiquidity
	PosRateModel
	PosVault
	PosLiquidity
	PosLiquidityProgram
	PosRewardsRateModel
	PosTokenProgram
	PosAssociatedTokenProgram
	PosSystemProgram
	PosLendingProgram
)

// Slot is one position of the deposit call's account list.
type Slot struct {
	Name     string
	Signer   bool
	Writable bool
}

// DepositLayout is the deposit call's account list. Flags are fixed per
// position regardless of what a caller supplies.
var DepositLayout = [DepositAccountsLen]Slot{
	{Name: "signer", Signer: true, Writable: true},
	{Name: "depositor_token_account", Writable: true},
	{Name: "recipient_token_account", Writable: true},
	{Name: "mint"},
	{Name: "lending_admin"},
	{Name: "lending", Writable: true},
	{Name: "f_token_mint", Writable: true},
	{Name: "supply_token_reserves_liquidity", Writable: true},
	{Name: "lending_supply_position_on_liquidity", Writable: true},
	{Name: "rate_model"},
	{Name: "vault", Writable: true},
	{Name: "liquidity", Writable: true},
	{Name: "liquidity_program", Writable: true},
	{Name: "rewards_rate_model"},
	{Name: "token_program"},
	{Name: "associated_token_program"},
	{Name: "system_program"},
}

// ProgramAccounts returns the resources a deposit message adds to the
// resource list, in order. The signer is listed as a plain writable
// account; the receiver signs for it with seeds.
func ProgramAccounts(cfg ir.Config) ([]ir.Resource, error) {
	depositor, err := pda.TokenHolding(cfg.AssociatedTokenProgram, cfg.Store, cfg.TokenProgram, cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("depositor token account: %w", err)
	}
	recipient, err := pda.TokenHolding(cfg.AssociatedTokenProgram, cfg.Store, cfg.TokenProgram, cfg.Lending.FTokenMint)
	if err != nil {
		return nil, fmt.Errorf("recipient token account: %w", err)
	}

	l := cfg.Lending
	keys := [ProgramAccountsLen]solana.PublicKey{
		PosSigner:                           cfg.Store,
		PosDepositorTokenAccount:            depositor.PublicKey,
		PosRecipientTokenAccount:            recipient.PublicKey,
		PosMint:                             cfg.Mint,
		PosLendingAdmin:                     l.Admin,
		PosLending:                          l.Lending,
		PosFTokenMint:                       l.FTokenMint,
		PosSupplyTokenReservesLiquidity:     l.SupplyTokenReservesLiquidity,
		PosLendingSupplyPositionOnLiquidity: l.LendingSupplyPositionOnLiquidity,
		PosRateModel:                        l.RateModel,
		PosVault:                            l.Vault,
		PosLiquidity:                        l.Liquidity,
		PosLiquidityProgram:                 l.LiquidityProgram,
		PosRewardsRateModel:                 l.RewardsRateModel,
		PosTokenProgram:                     cfg.TokenProgram,
		PosAssociatedTokenProgram:           cfg.AssociatedTokenProgram,
		PosSystemProgram:                    cfg.SystemProgram,
		PosLendingProgram:                   l.Program,
	}

	out := make([]ir.Resource, ProgramAccountsLen)
	for i, k := range keys {
		writable := i < DepositAccountsLen && DepositLayout[i].Writable
		out[i] = ir.Resource{PublicKey: k, IsWritable: writable}
	}
	return out, nil
}

// ValidateAgainst checks the mint, token program, associated-token program
// and lending program in accounts against cfg. accounts is the program
// account list as returned by ProgramAccounts. A mismatch is reported as
// ir.ErrInvalidMessageType: the message asks for a deposit the configured
// pool cannot serve.
func ValidateAgainst(cfg ir.Config, accounts []ir.Resource) error {
	if len(accounts) < ProgramAccountsLen {
		return ir.Errorf(ir.ErrCodeInvalidAccount,
			"deposit requires %d program accounts, got %d", ProgramAccountsLen, len(accounts))
	}
	checks := []struct {
		pos  int
		name string
		want solana.PublicKey
	}{
		{PosMint, "mint", cfg.Mint},
		{PosTokenProgram, "token_program", cfg.TokenProgram},
		{PosAssociatedTokenProgram, "associated_token_program", cfg.AssociatedTokenProgram},
		{PosLendingProgram, "lending_program", cfg.Lending.Program},
	}
	for _, c := range checks {
		if got := accounts[c.pos].PublicKey; !got.Equals(c.want) {
			return ir.NewError(ir.ErrCodeInvalidMessageType, c.name+" does not match configuration",
				"field", c.name, "expected", c.want.String(), "got", got.String())
		}
	}
	return nil
}

// CheckProgramAccounts compares every key in accounts with the list
// ProgramAccounts derives from cfg. Flags are not compared; BuildDeposit
// fixes them per position.
func CheckProgramAccounts(cfg ir.Config, accounts []ir.Resource) error {
	want, err := ProgramAccounts(cfg)
	if err != nil {
		return err
	}
	if len(accounts) != len(want) {
		return ir.Errorf(ir.ErrCodeInvalidAccount,
			"deposit requires %d program accounts, got %d", len(want), len(accounts))
	}
	for i, w := range want {
		if got := accounts[i].PublicKey; !got.Equals(w.PublicKey) {
			return ir.NewError(ir.ErrCodeInvalidAccount,
				fmt.Sprintf("program account %d (%s) does not match", i, slotName(i)),
				"expected", w.PublicKey.String(), "got", got.String())
		}
	}
	return nil
}

func slotName(i int) string {
	if i < DepositAccountsLen {
		return DepositLayout[i].Name
	}
	return "lending_program"
}

// EncodeDepositData returns discriminator || amount (u64 little-endian).
func EncodeDepositData(amount uint64) []byte {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	_ = enc.WriteBytes(DepositDiscriminator[:], false)
	_ = enc.WriteUint64(amount, binary.LittleEndian)
	return buf.Bytes()
}

// BuildDeposit builds the deposit instruction from the program account
// list. The first DepositAccountsLen entries become the call's accounts
// with DepositLayout's flags; the last entry is the target program.
func BuildDeposit(accounts []ir.Resource, amount uint64) (*solana.GenericInstruction, error) {
	if len(accounts) != ProgramAccountsLen {
		return nil, ir.Errorf(ir.ErrCodeInvalidAccount,
			"deposit requires %d program accounts, got %d", ProgramAccountsLen, len(accounts))
	}
	metas := make(solana.AccountMetaSlice, DepositAccountsLen)
	for i, slot := range DepositLayout {
		metas[i] = solana.NewAccountMeta(accounts[i].PublicKey, slot.Writable, slot.Signer)
	}
	return solana.NewInstruction(accounts[PosLendingProgram].PublicKey, metas, EncodeDepositData(amount)), nil
}
