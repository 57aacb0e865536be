package store

import (
	"context"
	"fmt"

	"github.com/roach88/lzrecv/internal/ir"
)

// InboundEntry is one execution request as it arrived.
type InboundEntry struct {
	Seq        int64         `json:"seq"`
	Digest     string        `json:"digest"`
	Envelope   ir.Envelope   `json:"envelope"`
	Resources  []ir.Resource `json:"resources"`
	ReceivedAt int64         `json:"received_at"`
}

// AppendInbound logs an execution request and returns it with its seq and
// envelope digest filled in. The log is written outside the message
// transaction so rejected requests are kept too.
func (q queries) AppendInbound(ctx context.Context, entry InboundEntry) (InboundEntry, error) {
	digest, err := ir.EnvelopeDigest(entry.Envelope)
	if err != nil {
		return InboundEntry{}, fmt.Errorf("append inbound: %w", err)
	}
	env, err := marshalEnvelope(entry.Envelope)
	if err != nil {
		return InboundEntry{}, fmt.Errorf("append inbound: %w", err)
	}
	resources, err := marshalResources(entry.Resources)
	if err != nil {
		return InboundEntry{}, fmt.Errorf("append inbound: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO inbound_log (digest, envelope, resources, received_at)
		VALUES (?, ?, ?, ?)
	`, digest, env, resources, entry.ReceivedAt)
	if err != nil {
		return InboundEntry{}, fmt.Errorf("append inbound: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return InboundEntry{}, fmt.Errorf("append inbound: %w", err)
	}
	entry.Seq = seq
	entry.Digest = digest
	return entry, nil
}

// InboundLog returns every logged request in arrival order.
func (q queries) InboundLog(ctx context.Context) ([]InboundEntry, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT seq, digest, envelope, resources, received_at
		FROM inbound_log ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query inbound log: %w", err)
	}
	defer rows.Close()

	out := []InboundEntry{}
	for rows.Next() {
		var e InboundEntry
		var env, resources string
		if err := rows.Scan(&e.Seq, &e.Digest, &env, &resources, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan inbound: %w", err)
		}
		if e.Envelope, err = unmarshalEnvelope(env); err != nil {
			return nil, fmt.Errorf("scan inbound: %w", err)
		}
		if e.Resources, err = unmarshalResources(resources); err != nil {
			return nil, fmt.Errorf("scan inbound: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inbound log: %w", err)
	}
	return out, nil
}
