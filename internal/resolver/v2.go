package resolver

import (
	"github.com/gagliardetto/solana-go"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/ir"
)

// ExecutionContextVersion is the plan format version.
const ExecutionContextVersion = 1

// MaxTableEntries is the largest lookup table an index can address.
const MaxTableEntries = 256

// LookupTable is an address lookup table supplied by the caller.
type LookupTable struct {
	Key       solana.PublicKey   `json:"key"`
	Addresses []solana.PublicKey `json:"addresses"`
}

// TableIndex locates an address inside one of the plan's lookup tables.
type TableIndex struct {
	Table uint8 `json:"table"`
	Index uint8 `json:"index"`
}

// AddressLocator is either a full address or a table index.
type AddressLocator struct {
	Address *solana.PublicKey `json:"address,omitempty"`
	Table   *TableIndex       `json:"alt_index,omitempty"`
}

// AccountRef is one compressed resource. Signer flags are not carried;
// the executor supplies signatures itself.
type AccountRef struct {
	Locator    AddressLocator `json:"pubkey"`
	IsWritable bool           `json:"is_writable"`
}

// PlanInstruction is one instruction of an execution plan.
type PlanInstruction struct {
	Kind     string       `json:"kind"`
	Accounts []AccountRef `json:"accounts"`
}

// Plan is the versioned resolver result.
type Plan struct {
	ContextVersion uint8              `json:"context_version"`
	LookupTables   []solana.PublicKey `json:"alts"`
	Instructions   []PlanInstruction  `json:"instructions"`
}

// ResolveV2 resolves env and compresses the list against tables. Order is
// preserved exactly; an address found in several tables uses the first.
func ResolveV2(cfg ir.Config, variant codec.Variant, env ir.Envelope, tables []LookupTable) (Plan, error) {
	resources, err := Resolve(cfg, variant, env)
	if err != nil {
		return Plan{}, err
	}
	if len(tables) > MaxTableEntries {
		return Plan{}, ir.Errorf(ir.ErrCodeInvalidAccount, "%d lookup tables exceeds %d", len(tables), MaxTableEntries)
	}

	keys := make([]solana.PublicKey, len(tables))
	for i, t := range tables {
		keys[i] = t.Key
	}
	return Plan{
		ContextVersion: ExecutionContextVersion,
		LookupTables:   keys,
		Instructions: []PlanInstruction{{
			Kind:     "lz_receive",
			Accounts: Compress(resources, tables),
		}},
	}, nil
}

// Compress replaces each resource found in tables with its table index.
func Compress(resources []ir.Resource, tables []LookupTable) []AccountRef {
	index := make(map[solana.PublicKey]TableIndex)
	for ti := len(tables) - 1; ti >= 0; ti-- {
		addrs := tables[ti].Addresses
		for ai := min(len(addrs), MaxTableEntries) - 1; ai >= 0; ai-- {
			index[addrs[ai]] = TableIndex{Table: uint8(ti), Index: uint8(ai)}
		}
	}

	out := make([]AccountRef, len(resources))
	for i, r := range resources {
		ref := AccountRef{IsWritable: r.IsWritable}
		if loc, ok := index[r.PublicKey]; ok {
			ref.Locator.Table = &loc
		} else {
			pk := r.PublicKey
			ref.Locator.Address = &pk
		}
		out[i] = ref
	}
	return out
}

// Decompress expands refs back to resources using tables.
func Decompress(refs []AccountRef, tables []LookupTable) ([]ir.Resource, error) {
	out := make([]ir.Resource, len(refs))
	for i, ref := range refs {
		switch {
		case ref.Locator.Address != nil:
			out[i] = ir.Resource{PublicKey: *ref.Locator.Address, IsWritable: ref.IsWritable}
		case ref.Locator.Table != nil:
			loc := ref.Locator.Table
			if int(loc.Table) >= len(tables) || int(loc.Index) >= len(tables[loc.Table].Addresses) {
				return nil, ir.Errorf(ir.ErrCodeInvalidAccount,
					"account %d: table index (%d, %d) out of range", i, loc.Table, loc.Index)
			}
			out[i] = ir.Resource{PublicKey: tables[loc.Table].Addresses[loc.Index], IsWritable: ref.IsWritable}
		default:
			return nil, ir.Errorf(ir.ErrCodeInvalidAccount, "account %d: empty locator", i)
		}
	}
	return out, nil
}
