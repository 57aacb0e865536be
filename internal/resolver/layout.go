package resolver

import (
	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/endpoint"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/lending"
)

// Positions in a resolved resource list.
const (
	PosStore      = 0
	PosPeer       = 1
	PosClearStart = 2
	PosClearEnd   = PosClearStart + endpoint.ClearAccountsLen
	PosProgram    = PosClearEnd

	// BaseLen is the list length for messages without an external call.
	BaseLen = PosClearEnd

	// DepositLen is the list length for messages with an external call.
	DepositLen = BaseLen + lending.ProgramAccountsLen
)

// RequiresExternalCall reports whether body, under variant, implies the
// lending call and its resources. A deposit deployment always reserves
// them: a malformed body still reaches the engine with the full list and
// fails after its slot is consumed.
func RequiresExternalCall(variant codec.Variant, body []byte) bool {
	kind, err := codec.Classify(variant, body)
	if err != nil {
		return variant == codec.VariantDeposit
	}
	return kind == codec.KindDeposit
}

// ExpectedLen is the resource list length for body under variant.
func ExpectedLen(variant codec.Variant, body []byte) int {
	if RequiresExternalCall(variant, body) {
		return DepositLen
	}
	return BaseLen
}

// Layout is a resource list split into its segments.
type Layout struct {
	Store   ir.Resource
	Peer    ir.Resource
	Clear   []ir.Resource
	Program []ir.Resource
}

// Split cuts resources into segments. The list must have exactly the
// length the message implies; anything else is a resource-list integrity
// violation.
func Split(variant codec.Variant, body []byte, resources []ir.Resource) (Layout, error) {
	want := ExpectedLen(variant, body)
	if len(resources) != want {
		return Layout{}, ir.Errorf(ir.ErrCodeInvalidAccount,
			"resource list has %d entries, expected %d", len(resources), want)
	}
	l := Layout{
		Store: resources[PosStore],
		Peer:  resources[PosPeer],
		Clear: resources[PosClearStart:PosClearEnd],
	}
	if want == DepositLen {
		l.Program = resources[PosProgram:]
	}
	return l, nil
}
