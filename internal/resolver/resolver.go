// Package resolver computes the ordered resource list an inbound message
// will touch, ahead of execution.
//
// Resolution is a pure projection of the envelope and the configuration
// record. It never reads or writes slot state, so it returns the same list
// before and after the message executes.
package resolver

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/endpoint"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/lending"
	"github.com/roach88/lzrecv/internal/pda"
)

// Resolve returns the resources env requires, in execution order: the
// store, the peer record, the endpoint's clear resources and, when the
// message implies a lending call, the lending program accounts.
func Resolve(cfg ir.Config, variant codec.Variant, env ir.Envelope) ([]ir.Resource, error) {
	peer, err := pda.Peer(cfg.ProgramID, cfg.Store, env.SrcEID)
	if err != nil {
		return nil, err
	}

	out := make([]ir.Resource, 0, ExpectedLen(variant, env.Message))
	out = append(out, ir.Writable(cfg.Store), ir.ReadOnly(peer.PublicKey))

	clearAccts, err := endpoint.New(cfg.EndpointProgram).AccountsForClear(cfg.Store, env.SrcEID, env.Sender, env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("resolve clear accounts: %w", err)
	}
	out = append(out, clearAccts...)

	if RequiresExternalCall(variant, env.Message) {
		prog, err := lending.ProgramAccounts(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve lending accounts: %w", err)
		}
		out = append(out, prog...)
	}
	return out, nil
}

// InfoVersion is the resolver protocol version Info advertises.
const InfoVersion = 2

// InfoResult names the accounts the versioned resolver call needs.
type InfoResult struct {
	Version  uint8              `json:"version"`
	Accounts []solana.PublicKey `json:"accounts"`
}

// Info returns the resolver version and the accounts ResolveV2 reads: the
// store, the resolver context account and the lookup table.
func Info(cfg ir.Config) (InfoResult, error) {
	rt, err := pda.ReceiveTypes(cfg.ProgramID, cfg.Store)
	if err != nil {
		return InfoResult{}, err
	}
	return InfoResult{
		Version:  InfoVersion,
		Accounts: []solana.PublicKey{cfg.Store, rt.PublicKey, cfg.LookupTable},
	}, nil
}
