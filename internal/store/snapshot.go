package store

import (
	"context"
	"fmt"

	"github.com/roach88/lzrecv/internal/ir"
)

// Snapshot is the durable state of a store, excluding the inbound log.
type Snapshot struct {
	AppState      ir.AppState          `json:"app_state"`
	Peers         []ir.Peer            `json:"peers"`
	Ledger        []ir.LedgerRecord    `json:"ledger"`
	Slots         []ir.SlotRecord      `json:"slots"`
	Verified      []VerifiedPayload    `json:"verified_payloads"`
	Outbound      []ir.OutboundMessage `json:"outbound_messages"`
	ExternalCalls []ir.ExternalCall    `json:"external_calls"`
	DepositEvents []ir.DepositEvent    `json:"deposit_events"`
	Failures      []ir.FailedMessage   `json:"failures"`
}

// Snapshot reads the durable state.
func (q queries) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	var err error
	if s.AppState, err = q.AppState(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.Peers, err = q.Peers(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.Ledger, err = q.LedgerRecords(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.Slots, err = q.Slots(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.Verified, err = q.VerifiedPayloads(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.Outbound, err = q.OutboundMessages(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.ExternalCalls, err = q.ExternalCalls(ctx); err != nil {
		return Snapshot{}, err
	}
	if s.DepositEvents, err = q.DepositEvents(ctx, nil); err != nil {
		return Snapshot{}, err
	}
	if s.Failures, err = q.Failures(ctx); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// StateDigest returns the digest of the store's durable state. Stores that
// executed the same requests in the same order have equal digests.
func (q queries) StateDigest(ctx context.Context) (string, error) {
	s, err := q.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("state digest: %w", err)
	}
	return ir.StateDigest(s.Canonical())
}

// Canonical projects the snapshot onto the canonical value space.
func (s Snapshot) Canonical() map[string]any {
	return map[string]any{
		"app_state": map[string]any{
			"text":    s.AppState.Text,
			"counter": s.AppState.Counter,
		},
		"peers":             each(s.Peers, canonicalPeer),
		"ledger":            each(s.Ledger, canonicalLedger),
		"slots":             each(s.Slots, canonicalSlot),
		"verified_payloads": each(s.Verified, canonicalVerified),
		"outbound_messages": each(s.Outbound, canonicalOutbound),
		"external_calls":    each(s.ExternalCalls, canonicalCall),
		"deposit_events":    each(s.DepositEvents, canonicalDeposit),
		"failures":          each(s.Failures, canonicalFailure),
	}
}

func each[T any](xs []T, f func(T) map[string]any) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = f(x)
	}
	return out
}

func canonicalKey(k ir.SlotKey) map[string]any {
	return map[string]any{
		"receiver": k.Receiver.String(),
		"src_eid":  k.SrcEID,
		"sender":   k.Sender.String(),
		"nonce":    k.Nonce,
	}
}

func canonicalPeer(p ir.Peer) map[string]any {
	return map[string]any{"src_eid": p.SrcEID, "address": p.Address.String()}
}

func canonicalLedger(r ir.LedgerRecord) map[string]any {
	return map[string]any{
		"sender":          r.Sender.String(),
		"total_deposited": r.TotalDeposited,
		"deposit_count":   r.DepositCount,
		"last_updated":    r.LastUpdated,
		"created_at":      r.CreatedAt,
	}
}

func canonicalSlot(r ir.SlotRecord) map[string]any {
	return map[string]any{
		"key":          canonicalKey(r.Key),
		"guid":         r.GUID.String(),
		"payload_hash": r.PayloadHash.String(),
		"status":       string(r.Status),
		"consumed_at":  r.ConsumedAt,
	}
}

func canonicalVerified(v VerifiedPayload) map[string]any {
	return map[string]any{"key": canonicalKey(v.Key), "hash": v.Hash.String()}
}

func canonicalOutbound(m ir.OutboundMessage) map[string]any {
	return map[string]any{
		"seq":     m.Seq,
		"guid":    m.GUID.String(),
		"index":   m.Index,
		"from":    m.From.String(),
		"to":      m.To.String(),
		"message": m.Message.String(),
	}
}

func canonicalCall(c ir.ExternalCall) map[string]any {
	accounts := make([]any, len(c.Accounts))
	for i, r := range c.Accounts {
		accounts[i] = r
	}
	return map[string]any{
		"seq":        c.Seq,
		"guid":       c.GUID.String(),
		"program_id": c.ProgramID.String(),
		"accounts":   accounts,
		"data":       c.Data.String(),
	}
}

func canonicalDeposit(e ir.DepositEvent) map[string]any {
	m := map[string]any{
		"seq":           e.Seq,
		"guid":          e.GUID.String(),
		"sender":        e.Sender.String(),
		"amount":        e.Amount,
		"new_total":     e.NewTotal,
		"deposit_index": e.DepositIndex,
		"timestamp":     e.Timestamp,
	}
	if e.CorrelationID != nil {
		m["correlation_id"] = e.CorrelationID.String()
	}
	return m
}

func canonicalFailure(f ir.FailedMessage) map[string]any {
	return map[string]any{
		"envelope":  f.Envelope,
		"stage":     f.Stage,
		"code":      string(f.Code),
		"message":   f.Message,
		"failed_at": f.FailedAt,
	}
}
