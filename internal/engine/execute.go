package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/endpoint"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/lending"
	"github.com/roach88/lzrecv/internal/pda"
	"github.com/roach88/lzrecv/internal/resolver"
	"github.com/roach88/lzrecv/internal/store"
)

// Execute runs one message through every stage inside a single store
// transaction and returns its receipt. A failure after the slot is
// consumed rolls back to the slot claim and commits the slot as failed.
//
// A non-nil error is always an *ExecutionError. The receipt is filled in
// either way; on failure it carries the error code and the stage reached.
func (e *Engine) Execute(ctx context.Context, req Request) (Receipt, error) {
	start := time.Now()
	at := req.At
	if at == 0 {
		at = e.clock.Now()
	}
	env := req.Envelope
	rc := Receipt{
		ExecutionID: e.ids.Generate(),
		GUID:        env.GUID,
		Stage:       StageReceived,
		At:          at,
	}
	log := e.log.With(
		"execution_id", rc.ExecutionID,
		"guid", env.GUID.String(),
		"src_eid", env.SrcEID,
		"nonce", env.Nonce,
	)

	entry, err := e.store.AppendInbound(ctx, store.InboundEntry{
		Envelope:   env,
		Resources:  req.Resources,
		ReceivedAt: at,
	})
	if err != nil {
		rc.Status = StatusRejected
		rc.Error = err.Error()
		return rc, &ExecutionError{ExecutionID: rc.ExecutionID, Stage: StageReceived, Err: err}
	}
	rc.Digest = entry.Digest

	x := &execution{engine: e, req: req, at: at, stage: StageReceived}
	err = e.store.Update(ctx, func(tx *store.Tx) error {
		x.tx = tx
		runErr := x.run(ctx)
		if runErr == nil || !x.spent {
			return runErr
		}
		x.failure = runErr
		return x.spendFailed(ctx, runErr)
	})
	rc.Stage = x.stage
	rc.Kind = x.kind

	if err == nil && x.failure == nil {
		rc.Status = StatusComplete
		rc.Stage = StageComplete
		x.out.apply(&rc)
		log.Info("message executed", "kind", rc.Kind, "payload_hash", rc.PayloadHash.String())
		if rc.Event != nil {
			log.Info("deposit recorded",
				"sender", rc.Event.Sender.String(),
				"amount", rc.Event.Amount,
				"new_total", rc.Event.NewTotal,
				"deposit_index", rc.Event.DepositIndex,
			)
		}
		e.observe(rc, time.Since(start))
		return rc, nil
	}

	cause := err
	if x.failure != nil {
		cause = x.failure
	}
	code, _ := ir.CodeOf(cause)
	rc.Code = code
	rc.Error = cause.Error()
	execErr := &ExecutionError{ExecutionID: rc.ExecutionID, Stage: x.stage, Err: cause}

	switch {
	case x.failure == nil:
		rc.Status = StatusRejected
		log.Info("message rejected", "stage", x.stage, "code", code, "error", err)
	case err != nil:
		// The failure could not be recorded and the whole transaction
		// rolled back, slot included.
		rc.Status = StatusRejected
		log.Error("failed to spend slot of failed message",
			"stage", x.stage, "code", code, "error", cause, "spend_error", err)
		execErr.Err = errors.Join(cause, fmt.Errorf("spend slot: %w", err))
	default:
		rc.Status = StatusFailed
		execErr.SlotSpent = true
		log.Warn("message failed after slot consumed", "stage", x.stage, "code", code, "error", cause)
	}
	e.observe(rc, time.Since(start))
	return rc, execErr
}

// spendFailed undoes everything written after the slot was consumed, marks
// the slot failed and records the failure, all in the transaction that
// consumed it.
func (x *execution) spendFailed(ctx context.Context, cause error) error {
	if err := x.tx.RollbackTo(ctx, savepointMutate); err != nil {
		return err
	}
	if err := x.ep.Burn(ctx, x.tx, x.clear); err != nil {
		return err
	}
	code, _ := ir.CodeOf(cause)
	return x.tx.RecordFailure(ctx, ir.FailedMessage{
		Envelope: x.req.Envelope,
		Stage:    string(x.stage),
		Code:     code,
		Message:  cause.Error(),
		FailedAt: x.at,
	})
}

func (e *Engine) observe(rc Receipt, elapsed time.Duration) {
	for _, o := range e.observers {
		o.ObserveExecution(rc, elapsed)
	}
}

// savepointMutate separates the slot claim from the state changes that
// follow it.
const savepointMutate = "mutate"

// execution carries one message through its stages. It lives for a single
// call to Execute.
type execution struct {
	engine *Engine
	tx     *store.Tx
	req    Request
	at     int64

	stage   Stage
	kind    string
	spent   bool
	failure error

	ep    *endpoint.Endpoint
	clear endpoint.ClearParams
	out   effects
}

// effects are copied onto the receipt only once the transaction commits.
type effects struct {
	payloadHash   ir.Bytes32
	state         *ir.AppState
	ledger        *ir.LedgerRecord
	ledgerAccount *pda.Address
	event         *ir.DepositEvent
	ack           *ir.OutboundMessage
	call          *ir.ExternalCall
}

func (f effects) apply(rc *Receipt) {
	h := f.payloadHash
	rc.PayloadHash = &h
	rc.AppState = f.state
	rc.Ledger = f.ledger
	if f.ledgerAccount != nil {
		pk := f.ledgerAccount.PublicKey
		rc.LedgerAccount = &pk
	}
	rc.Event = f.event
	rc.Ack = f.ack
	rc.Call = f.call
}

func (x *execution) run(ctx context.Context) error {
	env := x.req.Envelope

	cfg, err := x.tx.Config(ctx)
	if err != nil {
		return err
	}

	if err := x.authenticate(ctx, env); err != nil {
		return err
	}
	layout, err := x.checkResources(cfg)
	if err != nil {
		return err
	}
	x.stage = StageAuthenticated

	x.ep = endpoint.New(cfg.EndpointProgram)
	x.clear = endpoint.ClearParams{
		Receiver: cfg.Store,
		SrcEID:   env.SrcEID,
		Sender:   env.Sender,
		Nonce:    env.Nonce,
		GUID:     env.GUID,
		Message:  env.Message,
		At:       x.at,
	}
	hash, err := x.ep.Clear(ctx, x.tx, layout.Clear, x.clear)
	if err != nil {
		return err
	}
	x.spent = true
	x.stage = StageSlotConsumed
	x.out.payloadHash = hash
	if err := x.tx.Savepoint(ctx, savepointMutate); err != nil {
		return err
	}

	msg, err := codec.Decode(x.engine.variant, env.Message)
	if err != nil {
		return err
	}
	x.stage = StageDecoded
	x.kind = msg.Kind().String()

	switch m := msg.(type) {
	case codec.Text:
		return x.applyText(ctx, m)
	case codec.Counter:
		return x.applyCounter(ctx, cfg, m)
	case codec.Deposit:
		return x.applyDeposit(ctx, cfg, layout, m)
	default:
		return fmt.Errorf("unhandled message kind %s", msg.Kind())
	}
}

// authenticate checks the sender against the trusted peer for its source
// chain. Nothing has been read besides the peer record.
func (x *execution) authenticate(ctx context.Context, env ir.Envelope) error {
	peer, ok, err := x.tx.Peer(ctx, env.SrcEID)
	if err != nil {
		return err
	}
	if !ok {
		return ir.Errorf(ir.ErrCodeInvalidPeer, "no peer configured for source chain %d", env.SrcEID)
	}
	if peer.Address != env.Sender {
		return ir.NewError(ir.ErrCodeInvalidPeer, "sender is not the configured peer",
			"expected", peer.Address.String(), "got", env.Sender.String())
	}
	return nil
}

// checkResources splits the resource list and checks its store and peer
// entries against the configuration.
func (x *execution) checkResources(cfg ir.Config) (resolver.Layout, error) {
	env := x.req.Envelope
	layout, err := resolver.Split(x.engine.variant, env.Message, x.req.Resources)
	if err != nil {
		return resolver.Layout{}, err
	}
	if want := ir.Writable(cfg.Store); layout.Store != want {
		return resolver.Layout{}, ir.NewError(ir.ErrCodeInvalidAccount, "resource 0 is not the writable store",
			"expected", want.PublicKey.String(), "got", layout.Store.PublicKey.String())
	}
	peer, err := pda.Peer(cfg.ProgramID, cfg.Store, env.SrcEID)
	if err != nil {
		return resolver.Layout{}, err
	}
	if want := ir.ReadOnly(peer.PublicKey); layout.Peer != want {
		return resolver.Layout{}, ir.NewError(ir.ErrCodeInvalidAccount, "resource 1 is not the peer record",
			"expected", want.PublicKey.String(), "got", layout.Peer.PublicKey.String())
	}
	return layout, nil
}

func (x *execution) applyText(ctx context.Context, m codec.Text) error {
	st, err := x.tx.AppState(ctx)
	if err != nil {
		return err
	}
	st.Text = m.Value
	if err := x.tx.PutAppState(ctx, st); err != nil {
		return err
	}
	x.stage = StageStateUpdated
	x.out.state = &st
	return nil
}

func (x *execution) applyCounter(ctx context.Context, cfg ir.Config, m codec.Counter) error {
	st, err := x.tx.AppState(ctx)
	if err != nil {
		return err
	}

	if m.Opcode == codec.OpAck {
		// An inbound ACK closes a round trip; there is nothing to update.
		x.stage = StageStateUpdated
		x.out.state = &st
		return nil
	}

	sum, carry := bits.Add64(st.Counter, m.IncrementBy(), 0)
	if carry != 0 {
		return ir.NewError(ir.ErrCodeOverflow, "counter increment overflows",
			"counter", fmt.Sprint(st.Counter), "increment", fmt.Sprint(m.IncrementBy()))
	}
	st.Counter = sum
	if err := x.tx.PutAppState(ctx, st); err != nil {
		return err
	}
	x.stage = StageStateUpdated
	x.out.state = &st

	if !x.engine.acks {
		return nil
	}
	ack, err := x.ep.SendCompose(ctx, x.tx, endpoint.ComposeParams{
		From:    cfg.Store,
		To:      cfg.ProgramID,
		GUID:    x.req.Envelope.GUID,
		Index:   0,
		Message: codec.EncodeAck(sum),
	})
	if err != nil {
		return err
	}
	x.out.ack = &ack
	return nil
}

func (x *execution) applyDeposit(ctx context.Context, cfg ir.Config, layout resolver.Layout, m codec.Deposit) error {
	env := x.req.Envelope
	sender := m.Originator(env.Sender)

	rec, ok, err := x.tx.LedgerRecord(ctx, sender)
	if err != nil {
		return err
	}
	if !ok {
		rec = ir.LedgerRecord{Sender: sender, CreatedAt: x.at}
	}

	total, carry := bits.Add64(rec.TotalDeposited, m.Amount, 0)
	if carry != 0 {
		return ir.NewError(ir.ErrCodeOverflow, "deposit total overflows",
			"sender", sender.String(), "total", fmt.Sprint(rec.TotalDeposited), "amount", fmt.Sprint(m.Amount))
	}
	if rec.DepositCount == math.MaxUint32 {
		return ir.NewError(ir.ErrCodeOverflow, "deposit count overflows", "sender", sender.String())
	}
	rec.TotalDeposited = total
	rec.DepositCount++
	rec.LastUpdated = x.at
	if err := x.tx.PutLedgerRecord(ctx, rec); err != nil {
		return err
	}

	acct, err := pda.Ledger(cfg.ProgramID, sender)
	if err != nil {
		return err
	}
	ev, err := x.tx.AppendDepositEvent(ctx, ir.DepositEvent{
		GUID:          env.GUID,
		Sender:        sender,
		Amount:        m.Amount,
		NewTotal:      total,
		DepositIndex:  rec.DepositCount,
		Timestamp:     x.at,
		CorrelationID: m.CorrelationID,
	})
	if err != nil {
		return err
	}
	x.stage = StageStateUpdated
	x.out.ledger = &rec
	x.out.ledgerAccount = &acct
	x.out.event = &ev

	if err := lending.ValidateAgainst(cfg, layout.Program); err != nil {
		return err
	}
	if err := lending.CheckProgramAccounts(cfg, layout.Program); err != nil {
		return err
	}
	ix, err := lending.BuildDeposit(layout.Program, m.Amount)
	if err != nil {
		return err
	}
	call, err := x.engine.invoker.Invoke(ctx, x.tx, Call{
		GUID:        env.GUID,
		Owner:       cfg.ProgramID,
		Instruction: ix,
		SignerSeeds: pda.StoreSignerSeeds(cfg.StoreBump),
	})
	if err != nil {
		return err
	}
	x.stage = StageExternalCall
	x.out.call = &call
	return nil
}
