package engine

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/pda"
)

// Call is an external call issued under the receiver's authority.
type Call struct {
	// GUID is the message the call is issued for.
	GUID ir.Bytes32

	// Owner is the program that derives the signing authority.
	Owner solana.PublicKey

	// Instruction is the call itself.
	Instruction *solana.GenericInstruction

	// SignerSeeds sign for every signer account of Instruction.
	SignerSeeds [][]byte
}

// CallJournal records issued external calls.
type CallJournal interface {
	AppendExternalCall(ctx context.Context, call ir.ExternalCall) (ir.ExternalCall, error)
}

// Invoker issues external calls. Implementations must reject a call whose
// signer seeds do not derive its signer accounts.
type Invoker interface {
	Invoke(ctx context.Context, journal CallJournal, call Call) (ir.ExternalCall, error)
}

// JournalInvoker verifies signer seeds and journals the call. The journal
// entry is the call's effect: it commits or rolls back with the message.
type JournalInvoker struct{}

// Invoke implements Invoker.
func (JournalInvoker) Invoke(ctx context.Context, journal CallJournal, call Call) (ir.ExternalCall, error) {
	ix := call.Instruction
	for _, meta := range ix.Accounts() {
		if !meta.IsSigner {
			continue
		}
		if err := pda.VerifySigner(call.Owner, meta.PublicKey, call.SignerSeeds); err != nil {
			return ir.ExternalCall{}, err
		}
	}
	data, err := ix.Data()
	if err != nil {
		return ir.ExternalCall{}, fmt.Errorf("encode call data: %w", err)
	}
	return journal.AppendExternalCall(ctx, ir.ExternalCall{
		GUID:      call.GUID,
		ProgramID: ix.ProgramID(),
		Accounts:  ir.ResourcesFromMetas(ix.Accounts()),
		Data:      data,
	})
}
