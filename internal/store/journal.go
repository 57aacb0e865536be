package store

import (
	"context"
	"fmt"

	"github.com/roach88/lzrecv/internal/ir"
)

// AppendOutbound journals a compose message and returns it with its
// assigned seq. A second message with the same (guid, index) is rejected.
func (q queries) AppendOutbound(ctx context.Context, msg ir.OutboundMessage) (ir.OutboundMessage, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO outbound_messages (guid, idx, from_key, to_key, message)
		VALUES (?, ?, ?, ?, ?)
	`, msg.GUID[:], msg.Index, msg.From.Bytes(), msg.To.Bytes(), []byte(msg.Message))
	if err != nil {
		return ir.OutboundMessage{}, fmt.Errorf("append outbound: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return ir.OutboundMessage{}, fmt.Errorf("append outbound: %w", err)
	}
	msg.Seq = seq
	return msg, nil
}

// OutboundMessages returns every journaled compose message in seq order.
func (q queries) OutboundMessages(ctx context.Context) ([]ir.OutboundMessage, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT seq, guid, idx, from_key, to_key, message
		FROM outbound_messages ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query outbound: %w", err)
	}
	defer rows.Close()

	out := []ir.OutboundMessage{}
	for rows.Next() {
		var m ir.OutboundMessage
		var guid, from, to, body []byte
		if err := rows.Scan(&m.Seq, &guid, &m.Index, &from, &to, &body); err != nil {
			return nil, fmt.Errorf("scan outbound: %w", err)
		}
		if err := scanBytes32(guid, &m.GUID, "guid"); err != nil {
			return nil, fmt.Errorf("scan outbound: %w", err)
		}
		if m.From, err = scanPublicKey(from, "from_key"); err != nil {
			return nil, fmt.Errorf("scan outbound: %w", err)
		}
		if m.To, err = scanPublicKey(to, "to_key"); err != nil {
			return nil, fmt.Errorf("scan outbound: %w", err)
		}
		m.Message = body
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbound: %w", err)
	}
	return out, nil
}

// AppendExternalCall journals an external call and returns it with its
// assigned seq.
func (q queries) AppendExternalCall(ctx context.Context, call ir.ExternalCall) (ir.ExternalCall, error) {
	accounts, err := marshalResources(call.Accounts)
	if err != nil {
		return ir.ExternalCall{}, fmt.Errorf("append external call: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO external_calls (guid, program_id, accounts, data)
		VALUES (?, ?, ?, ?)
	`, call.GUID[:], call.ProgramID.Bytes(), accounts, []byte(call.Data))
	if err != nil {
		return ir.ExternalCall{}, fmt.Errorf("append external call: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return ir.ExternalCall{}, fmt.Errorf("append external call: %w", err)
	}
	call.Seq = seq
	return call, nil
}

// ExternalCalls returns every journaled external call in seq order.
func (q queries) ExternalCalls(ctx context.Context) ([]ir.ExternalCall, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT seq, guid, program_id, accounts, data
		FROM external_calls ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query external calls: %w", err)
	}
	defer rows.Close()

	out := []ir.ExternalCall{}
	for rows.Next() {
		var c ir.ExternalCall
		var guid, prog, data []byte
		var accounts string
		if err := rows.Scan(&c.Seq, &guid, &prog, &accounts, &data); err != nil {
			return nil, fmt.Errorf("scan external call: %w", err)
		}
		if err := scanBytes32(guid, &c.GUID, "guid"); err != nil {
			return nil, fmt.Errorf("scan external call: %w", err)
		}
		if c.ProgramID, err = scanPublicKey(prog, "program_id"); err != nil {
			return nil, fmt.Errorf("scan external call: %w", err)
		}
		if c.Accounts, err = unmarshalResources(accounts); err != nil {
			return nil, fmt.Errorf("scan external call: %w", err)
		}
		c.Data = data
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate external calls: %w", err)
	}
	return out, nil
}

// AppendDepositEvent journals a deposit notification and returns it with
// its assigned seq.
func (q queries) AppendDepositEvent(ctx context.Context, ev ir.DepositEvent) (ir.DepositEvent, error) {
	var corr any
	if ev.CorrelationID != nil {
		corr = ev.CorrelationID[:]
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO deposit_events
		(guid, sender, amount, new_total, deposit_index, timestamp, correlation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.GUID[:], ev.Sender[:], u64(ev.Amount), u64(ev.NewTotal), ev.DepositIndex, ev.Timestamp, corr)
	if err != nil {
		return ir.DepositEvent{}, fmt.Errorf("append deposit event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return ir.DepositEvent{}, fmt.Errorf("append deposit event: %w", err)
	}
	ev.Seq = seq
	return ev, nil
}

// DepositEvents returns deposit notifications in seq order. A non-nil
// sender restricts the result to that sender.
func (q queries) DepositEvents(ctx context.Context, sender *ir.Address20) ([]ir.DepositEvent, error) {
	query := `
		SELECT seq, guid, sender, amount, new_total, deposit_index, timestamp, correlation_id
		FROM deposit_events`
	var args []any
	if sender != nil {
		query += ` WHERE sender = ?`
		args = append(args, sender[:])
	}
	query += ` ORDER BY seq ASC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deposit events: %w", err)
	}
	defer rows.Close()

	out := []ir.DepositEvent{}
	for rows.Next() {
		var ev ir.DepositEvent
		var guid, snd, corr []byte
		var amount, total int64
		if err := rows.Scan(&ev.Seq, &guid, &snd, &amount, &total, &ev.DepositIndex, &ev.Timestamp, &corr); err != nil {
			return nil, fmt.Errorf("scan deposit event: %w", err)
		}
		if err := scanBytes32(guid, &ev.GUID, "guid"); err != nil {
			return nil, fmt.Errorf("scan deposit event: %w", err)
		}
		if err := scanAddress20(snd, &ev.Sender, "sender"); err != nil {
			return nil, fmt.Errorf("scan deposit event: %w", err)
		}
		if corr != nil {
			var c ir.Bytes32
			if err := scanBytes32(corr, &c, "correlation_id"); err != nil {
				return nil, fmt.Errorf("scan deposit event: %w", err)
			}
			ev.CorrelationID = &c
		}
		ev.Amount = fromU64(amount)
		ev.NewTotal = fromU64(total)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deposit events: %w", err)
	}
	return out, nil
}
