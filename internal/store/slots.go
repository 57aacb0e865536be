package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lzrecv/internal/ir"
)

// ClaimSlot spends a sequence slot. Uses ON CONFLICT DO NOTHING and the
// affected row count to detect a slot that was already spent, in which case
// it returns ir.ErrSlotConsumed and writes nothing.
func (q queries) ClaimSlot(ctx context.Context, rec ir.SlotRecord) error {
	k := rec.Key
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO consumed_slots
		(receiver, src_eid, sender, nonce, guid, payload_hash, status, consumed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(receiver, src_eid, sender, nonce) DO NOTHING
	`,
		k.Receiver.Bytes(),
		k.SrcEID,
		k.Sender[:],
		u64(k.Nonce),
		rec.GUID[:],
		rec.PayloadHash[:],
		string(rec.Status),
		rec.ConsumedAt,
	)
	if err != nil {
		return fmt.Errorf("claim slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim slot: %w", err)
	}
	if n == 0 {
		return ir.NewError(ir.ErrCodeSlotConsumed,
			fmt.Sprintf("slot (%d, %s, %d) already consumed", k.SrcEID, k.Sender, k.Nonce))
	}
	return nil
}

// FailSlot marks a consumed slot as failed. The slot must have been
// claimed with status consumed, normally earlier in the same transaction.
func (q queries) FailSlot(ctx context.Context, key ir.SlotKey) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE consumed_slots SET status = ?
		WHERE receiver = ? AND src_eid = ? AND sender = ? AND nonce = ? AND status = ?
	`, string(ir.SlotFailed), key.Receiver.Bytes(), key.SrcEID, key.Sender[:], u64(key.Nonce), string(ir.SlotConsumed))
	if err != nil {
		return fmt.Errorf("fail slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail slot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("fail slot (%d, %s, %d): no consumed slot", key.SrcEID, key.Sender, key.Nonce)
	}
	return nil
}

// Slot returns the spent slot record for key. ok is false if the slot is
// still open.
func (q queries) Slot(ctx context.Context, key ir.SlotKey) (ir.SlotRecord, bool, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT receiver, src_eid, sender, nonce, guid, payload_hash, status, consumed_at
		FROM consumed_slots
		WHERE receiver = ? AND src_eid = ? AND sender = ? AND nonce = ?
	`, key.Receiver.Bytes(), key.SrcEID, key.Sender[:], u64(key.Nonce))
	rec, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.SlotRecord{}, false, nil
	}
	if err != nil {
		return ir.SlotRecord{}, false, fmt.Errorf("read slot: %w", err)
	}
	return rec, true, nil
}

// Slots returns every spent slot in the order it was spent.
func (q queries) Slots(ctx context.Context) ([]ir.SlotRecord, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT receiver, src_eid, sender, nonce, guid, payload_hash, status, consumed_at
		FROM consumed_slots ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	recs := []ir.SlotRecord{}
	for rows.Next() {
		rec, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return recs, nil
}

func scanSlot(s scanner) (ir.SlotRecord, error) {
	var rec ir.SlotRecord
	var receiver, sender, guid, hash []byte
	var nonce int64
	var status string
	if err := s.Scan(&receiver, &rec.Key.SrcEID, &sender, &nonce, &guid, &hash, &status, &rec.ConsumedAt); err != nil {
		return ir.SlotRecord{}, err
	}
	pk, err := scanPublicKey(receiver, "receiver")
	if err != nil {
		return ir.SlotRecord{}, err
	}
	rec.Key.Receiver = pk
	rec.Key.Nonce = fromU64(nonce)
	rec.Status = ir.SlotStatus(status)
	if err := scanBytes32(sender, &rec.Key.Sender, "sender"); err != nil {
		return ir.SlotRecord{}, err
	}
	if err := scanBytes32(guid, &rec.GUID, "guid"); err != nil {
		return ir.SlotRecord{}, err
	}
	if err := scanBytes32(hash, &rec.PayloadHash, "payload_hash"); err != nil {
		return ir.SlotRecord{}, err
	}
	return rec, nil
}

// VerifiedPayload is a payload hash recorded ahead of delivery.
type VerifiedPayload struct {
	Key  ir.SlotKey `json:"key"`
	Hash ir.Bytes32 `json:"hash"`
}

// RecordVerifiedPayload records the payload hash verified for key,
// replacing any earlier verification of the same slot.
func (q queries) RecordVerifiedPayload(ctx context.Context, key ir.SlotKey, hash ir.Bytes32) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO verified_payloads (receiver, src_eid, sender, nonce, payload_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(receiver, src_eid, sender, nonce) DO UPDATE SET payload_hash = excluded.payload_hash
	`, key.Receiver.Bytes(), key.SrcEID, key.Sender[:], u64(key.Nonce), hash[:])
	if err != nil {
		return fmt.Errorf("record verified payload: %w", err)
	}
	return nil
}

// VerifiedPayloadHash returns the verified payload hash for key. ok is
// false if the slot was never verified.
func (q queries) VerifiedPayloadHash(ctx context.Context, key ir.SlotKey) (ir.Bytes32, bool, error) {
	var raw []byte
	err := q.q.QueryRowContext(ctx, `
		SELECT payload_hash FROM verified_payloads
		WHERE receiver = ? AND src_eid = ? AND sender = ? AND nonce = ?
	`, key.Receiver.Bytes(), key.SrcEID, key.Sender[:], u64(key.Nonce)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Bytes32{}, false, nil
	}
	if err != nil {
		return ir.Bytes32{}, false, fmt.Errorf("read verified payload: %w", err)
	}
	var h ir.Bytes32
	if err := scanBytes32(raw, &h, "payload_hash"); err != nil {
		return ir.Bytes32{}, false, fmt.Errorf("read verified payload: %w", err)
	}
	return h, true, nil
}

// VerifiedPayloads returns every verified payload hash ordered by slot.
func (q queries) VerifiedPayloads(ctx context.Context) ([]VerifiedPayload, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT receiver, src_eid, sender, nonce, payload_hash
		FROM verified_payloads
		ORDER BY receiver ASC, src_eid ASC, sender ASC, nonce ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query verified payloads: %w", err)
	}
	defer rows.Close()

	out := []VerifiedPayload{}
	for rows.Next() {
		var receiver, sender, hash []byte
		var nonce int64
		var v VerifiedPayload
		if err := rows.Scan(&receiver, &v.Key.SrcEID, &sender, &nonce, &hash); err != nil {
			return nil, fmt.Errorf("scan verified payload: %w", err)
		}
		pk, err := scanPublicKey(receiver, "receiver")
		if err != nil {
			return nil, fmt.Errorf("scan verified payload: %w", err)
		}
		v.Key.Receiver = pk
		v.Key.Nonce = fromU64(nonce)
		if err := scanBytes32(sender, &v.Key.Sender, "sender"); err != nil {
			return nil, fmt.Errorf("scan verified payload: %w", err)
		}
		if err := scanBytes32(hash, &v.Hash, "payload_hash"); err != nil {
			return nil, fmt.Errorf("scan verified payload: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verified payloads: %w", err)
	}
	return out, nil
}
