// Package config loads deployment configuration from CUE files.
//
// A deployment file declares a top-level `deployment` struct. It is
// unified with the embedded #Deployment schema, which supplies defaults
// for the well-known programs and rejects malformed keys before anything
// reaches the store. The receiver authority and its bump are derived from
// program_id, never read from the file.
package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/gagliardetto/solana-go"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/pda"
	"github.com/roach88/lzrecv/internal/store"
)

//go:embed schema.cue
var schemaSource string

// Deployment is a compiled deployment file.
type Deployment struct {
	Variant          codec.Variant
	Acknowledgements bool
	Config           ir.Config
	Peers            []ir.Peer
}

// LoadError is a configuration error, with a source position when CUE
// reported one.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load compiles the deployment at path. path is either a single .cue file
// or a directory holding one CUE package.
func Load(path string) (*Deployment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Field: "path", Message: err.Error()}
	}

	ctx := cuecontext.New()
	var v cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &LoadError{Field: "path", Message: fmt.Sprintf("no CUE instances in %s", path)}
		}
		if err := instances[0].Err; err != nil {
			return nil, formatCUEError(err)
		}
		v = ctx.BuildInstance(instances[0])
	} else {
		if filepath.Ext(path) != ".cue" {
			return nil, &LoadError{Field: "path", Message: fmt.Sprintf("not a .cue file: %s", path)}
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Field: "path", Message: err.Error()}
		}
		v = ctx.CompileBytes(src, cue.Filename(path))
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}

// Compile checks v's `deployment` field against the schema and converts
// it.
func Compile(v cue.Value) (*Deployment, error) {
	dv := v.LookupPath(cue.ParsePath("deployment"))
	if !dv.Exists() {
		return nil, &LoadError{Field: "deployment", Message: "deployment is required", Pos: v.Pos()}
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("embedded schema: %w", err)
	}
	dv = schema.LookupPath(cue.ParsePath("#Deployment")).Unify(dv)
	if err := dv.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var raw rawDeployment
	if err := dv.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}
	return raw.compile(dv)
}

// Settings returns the variant and ACK choice as stored next to the
// configuration.
func (d *Deployment) Settings() store.Settings {
	return store.Settings{Variant: d.Variant.String(), Acknowledgements: d.Acknowledgements}
}

// Apply writes the configuration, the settings and every peer in one
// transaction.
func (d *Deployment) Apply(ctx context.Context, s *store.Store) error {
	return s.Update(ctx, func(tx *store.Tx) error {
		if err := tx.PutConfig(ctx, d.Config); err != nil {
			return fmt.Errorf("put config: %w", err)
		}
		if err := tx.PutSettings(ctx, d.Settings()); err != nil {
			return fmt.Errorf("put settings: %w", err)
		}
		for _, p := range d.Peers {
			if err := tx.PutPeer(ctx, p); err != nil {
				return fmt.Errorf("put peer %d: %w", p.SrcEID, err)
			}
		}
		return nil
	})
}

type rawDeployment struct {
	Variant                string     `json:"variant"`
	Acknowledgements       bool       `json:"acknowledgements"`
	ProgramID              string     `json:"program_id"`
	Admin                  string     `json:"admin"`
	EndpointProgram        string     `json:"endpoint_program"`
	Mint                   string     `json:"mint"`
	TokenProgram           string     `json:"token_program"`
	AssociatedTokenProgram string     `json:"associated_token_program"`
	SystemProgram          string     `json:"system_program"`
	LookupTable            string     `json:"lookup_table"`
	Lending                rawLending `json:"lending"`
	Peers                  []rawPeer  `json:"peers"`
}

type rawLending struct {
	Program                          string `json:"program"`
	LiquidityProgram                 string `json:"liquidity_program"`
	Admin                            string `json:"admin"`
	Lending                          string `json:"lending"`
	FTokenMint                       string `json:"f_token_mint"`
	SupplyTokenReservesLiquidity     string `json:"supply_token_reserves_liquidity"`
	LendingSupplyPositionOnLiquidity string `json:"lending_supply_position_on_liquidity"`
	RateModel                        string `json:"rate_model"`
	Vault                            string `json:"vault"`
	Liquidity                        string `json:"liquidity"`
	RewardsRateModel                 string `json:"rewards_rate_model"`
}

type rawPeer struct {
	SrcEID  uint32 `json:"src_eid"`
	Address string `json:"address"`
}

// keyParser collects the first key that fails to parse.
type keyParser struct {
	v   cue.Value
	err error
}

func (p *keyParser) key(field, s string) solana.PublicKey {
	if p.err != nil || s == "" {
		return solana.PublicKey{}
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		p.err = &LoadError{Field: field, Message: err.Error(), Pos: p.v.LookupPath(cue.ParsePath(field)).Pos()}
	}
	return pk
}

func (r rawDeployment) compile(v cue.Value) (*Deployment, error) {
	variant, err := codec.ParseVariant(r.Variant)
	if err != nil {
		return nil, &LoadError{Field: "variant", Message: err.Error()}
	}

	p := &keyParser{v: v}
	cfg := ir.Config{
		ProgramID:              p.key("program_id", r.ProgramID),
		Admin:                  p.key("admin", r.Admin),
		EndpointProgram:        p.key("endpoint_program", r.EndpointProgram),
		Mint:                   p.key("mint", r.Mint),
		TokenProgram:           p.key("token_program", r.TokenProgram),
		AssociatedTokenProgram: p.key("associated_token_program", r.AssociatedTokenProgram),
		SystemProgram:          p.key("system_program", r.SystemProgram),
		LookupTable:            p.key("lookup_table", r.LookupTable),
		Lending: ir.LendingAccounts{
			Program:                          p.key("lending.program", r.Lending.Program),
			LiquidityProgram:                 p.key("lending.liquidity_program", r.Lending.LiquidityProgram),
			Admin:                            p.key("lending.admin", r.Lending.Admin),
			Lending:                          p.key("lending.lending", r.Lending.Lending),
			FTokenMint:                       p.key("lending.f_token_mint", r.Lending.FTokenMint),
			SupplyTokenReservesLiquidity:     p.key("lending.supply_token_reserves_liquidity", r.Lending.SupplyTokenReservesLiquidity),
			LendingSupplyPositionOnLiquidity: p.key("lending.lending_supply_position_on_liquidity", r.Lending.LendingSupplyPositionOnLiquidity),
			RateModel:                        p.key("lending.rate_model", r.Lending.RateModel),
			Vault:                            p.key("lending.vault", r.Lending.Vault),
			Liquidity:                        p.key("lending.liquidity", r.Lending.Liquidity),
			RewardsRateModel:                 p.key("lending.rewards_rate_model", r.Lending.RewardsRateModel),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	st, err := pda.Store(cfg.ProgramID)
	if err != nil {
		return nil, &LoadError{Field: "program_id", Message: err.Error()}
	}
	cfg.Store = st.PublicKey
	cfg.StoreBump = st.Bump

	seen := make(map[uint32]bool, len(r.Peers))
	peers := make([]ir.Peer, 0, len(r.Peers))
	for i, rp := range r.Peers {
		if seen[rp.SrcEID] {
			return nil, &LoadError{
				Field:   fmt.Sprintf("peers[%d]", i),
				Message: fmt.Sprintf("duplicate peer for source chain %d", rp.SrcEID),
			}
		}
		seen[rp.SrcEID] = true

		addr, err := ParsePeerAddress(rp.Address)
		if err != nil {
			return nil, &LoadError{Field: fmt.Sprintf("peers[%d].address", i), Message: err.Error()}
		}
		peers = append(peers, ir.Peer{SrcEID: rp.SrcEID, Address: addr})
	}

	return &Deployment{
		Variant:          variant,
		Acknowledgements: r.Acknowledgements,
		Config:           cfg,
		Peers:            peers,
	}, nil
}

// ParsePeerAddress accepts a 20-byte EVM address, which it left-pads, or
// a full 32-byte remote address.
func ParsePeerAddress(s string) (ir.Bytes32, error) {
	if len(s) == 2+40 {
		a, err := ir.ParseAddress20(s)
		if err != nil {
			return ir.Bytes32{}, err
		}
		var out ir.Bytes32
		copy(out[12:], a[:])
		return out, nil
	}
	return ir.ParseBytes32(s)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
