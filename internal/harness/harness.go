package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/config"
	"github.com/roach88/lzrecv/internal/endpoint"
	"github.com/roach88/lzrecv/internal/engine"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/resolver"
	"github.com/roach88/lzrecv/internal/store"
	"github.com/roach88/lzrecv/internal/testutil"
)

// ClockStart is the deterministic clock origin. Step i executes at
// ClockStart+i+1.
const ClockStart int64 = 1_700_000_000

// Harness is the test execution engine for one scenario.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	cfg     ir.Config
	variant codec.Variant
	acks    bool
	opts    []engine.Option
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Apply the deployment (or the fixture one)
//  3. Write setup state
//  4. Resolve and execute every flow step, checking expect clauses
//  5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	h := &Harness{
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if err := h.deploy(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to deploy: %w", err)
	}

	h.opts = []engine.Option{engine.WithAcknowledgements(h.acks)}
	h.engine = engine.New(st, h.variant, append([]engine.Option{
		engine.WithClock(testutil.NewDeterministicClock(ClockStart, 1)),
		engine.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.ExecutionID)),
		engine.WithLogger(h.logger),
	}, h.opts...)...)

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Store:   st,
		Ctx:     ctx,
		Variant: h.variant,
		Options: h.opts,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// deploy writes the configuration and peers and settles the variant and
// ACK setting. A deployment file enables ACKs if either it or the scenario
// asks for them.
func (h *Harness) deploy(ctx context.Context, s *Scenario) error {
	h.acks = s.Acknowledgements
	if s.Deployment != "" {
		d, err := config.Load(s.Deployment)
		if err != nil {
			return err
		}
		if err := d.Apply(ctx, h.store); err != nil {
			return err
		}
		h.cfg = d.Config
		h.variant = d.Variant
		h.acks = h.acks || d.Acknowledgements
	} else {
		h.cfg = testutil.Config()
		if err := h.store.PutConfig(ctx, h.cfg); err != nil {
			return err
		}
		if err := h.store.PutPeer(ctx, testutil.Peer()); err != nil {
			return err
		}
	}
	if s.Variant != "" {
		v, err := codec.ParseVariant(s.Variant)
		if err != nil {
			return err
		}
		h.variant = v
	}
	return nil
}

// executeSetup writes setup state in one transaction.
func (h *Harness) executeSetup(ctx context.Context, setup Setup) error {
	ep := endpoint.New(h.cfg.EndpointProgram)
	return h.store.Update(ctx, func(tx *store.Tx) error {
		for i, p := range setup.Peers {
			addr, err := config.ParsePeerAddress(p.Address)
			if err != nil {
				return fmt.Errorf("peers[%d]: %w", i, err)
			}
			if err := tx.PutPeer(ctx, ir.Peer{SrcEID: p.SrcEID, Address: addr}); err != nil {
				return err
			}
		}
		if setup.AppState != nil {
			if err := tx.PutAppState(ctx, ir.AppState{Text: setup.AppState.Text, Counter: setup.AppState.Counter}); err != nil {
				return err
			}
		}
		for i, l := range setup.Ledger {
			sender, err := ir.ParseAddress20(l.Sender)
			if err != nil {
				return fmt.Errorf("ledger[%d]: %w", i, err)
			}
			rec := ir.LedgerRecord{
				Sender:         sender,
				TotalDeposited: l.TotalDeposited,
				DepositCount:   l.DepositCount,
				LastUpdated:    ClockStart,
				CreatedAt:      ClockStart,
			}
			if err := tx.PutLedgerRecord(ctx, rec); err != nil {
				return err
			}
		}
		for i, v := range setup.Verified {
			body, err := v.Message.Encode()
			if err != nil {
				return fmt.Errorf("verified[%d]: %w", i, err)
			}
			env := testutil.Envelope(v.Nonce, body)
			hash := endpoint.PayloadHash(env.GUID, body)
			if err := ep.Verify(ctx, tx, env.Slot(h.cfg.Store), hash); err != nil {
				return err
			}
			h.logger.Info("payload verified", "nonce", v.Nonce, "hash", hash.String())
		}
		return nil
	})
}

// executeFlow resolves and executes every flow step.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		env, err := h.envelope(step)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		resources, err := resolver.Resolve(h.cfg, h.variant, env)
		if err != nil {
			return fmt.Errorf("flow step %d: resolve: %w", i, err)
		}
		resources = tamper(step.Tamper, resources)

		rc, _ := h.engine.Execute(ctx, engine.Request{Envelope: env, Resources: resources})
		ev := newTraceEvent(i, step.Nonce, rc)
		result.AddStep(ev)

		if step.Expect != nil {
			checkExpect(i, step.Expect, ev, result)
		}

		h.logger.Info("flow step completed",
			"step", i,
			"nonce", step.Nonce,
			"status", rc.Status,
			"stage", rc.Stage,
			"code", rc.Code,
		)
	}
	return nil
}

func (h *Harness) envelope(step FlowStep) (ir.Envelope, error) {
	body, err := step.Message.Encode()
	if err != nil {
		return ir.Envelope{}, err
	}
	env := testutil.Envelope(step.Nonce, body)
	if step.SrcEID != 0 {
		env.SrcEID = step.SrcEID
	}
	if step.Sender != "" {
		if env.Sender, err = config.ParsePeerAddress(step.Sender); err != nil {
			return ir.Envelope{}, fmt.Errorf("sender: %w", err)
		}
	}
	if step.GUID != "" {
		if env.GUID, err = ir.ParseBytes32(step.GUID); err != nil {
			return ir.Envelope{}, fmt.Errorf("guid: %w", err)
		}
	}
	return env, nil
}

// tamper applies op to a copy of resources.
func tamper(op string, resources []ir.Resource) []ir.Resource {
	out := append([]ir.Resource(nil), resources...)
	switch op {
	case TamperDropLast:
		out = out[:len(out)-1]
	case TamperExtra:
		out = append(out, ir.ReadOnly(solana.SystemProgramID))
	case TamperSwapStorePeer:
		out[resolver.PosStore], out[resolver.PosPeer] = out[resolver.PosPeer], out[resolver.PosStore]
	case TamperReorderClear:
		a, b := resolver.PosClearStart+3, resolver.PosClearStart+4
		out[a], out[b] = out[b], out[a]
	}
	return out
}

func checkExpect(step int, want *ExpectClause, got TraceEvent, result *Result) {
	if want.Status != got.Status {
		result.AddError(fmt.Sprintf("flow step %d: expected status %s, got %s (code %q, stage %s)",
			step, want.Status, got.Status, got.Code, got.Stage))
	}
	if want.Code != "" && want.Code != got.Code {
		result.AddError(fmt.Sprintf("flow step %d: expected code %s, got %q", step, want.Code, got.Code))
	}
	if want.Stage != "" && want.Stage != got.Stage {
		result.AddError(fmt.Sprintf("flow step %d: expected stage %s, got %s", step, want.Stage, got.Stage))
	}
}
