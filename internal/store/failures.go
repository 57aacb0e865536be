package store

import (
	"context"
	"fmt"

	"github.com/roach88/lzrecv/internal/ir"
)

// RecordFailure records a message whose slot was spent by a failure after
// consumption. A second failure for the same slot is ignored.
func (q queries) RecordFailure(ctx context.Context, f ir.FailedMessage) error {
	e := f.Envelope
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO failed_messages
		(src_eid, sender, nonce, guid, message, stage, code, error, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(src_eid, sender, nonce) DO NOTHING
	`,
		e.SrcEID,
		e.Sender[:],
		u64(e.Nonce),
		e.GUID[:],
		[]byte(e.Message),
		f.Stage,
		string(f.Code),
		f.Message,
		f.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// Failures returns every recorded failure in the order it was recorded.
func (q queries) Failures(ctx context.Context) ([]ir.FailedMessage, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT src_eid, sender, nonce, guid, message, stage, code, error, failed_at
		FROM failed_messages ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	out := []ir.FailedMessage{}
	for rows.Next() {
		var f ir.FailedMessage
		var sender, guid, body []byte
		var nonce int64
		var code string
		if err := rows.Scan(&f.Envelope.SrcEID, &sender, &nonce, &guid, &body, &f.Stage, &code, &f.Message, &f.FailedAt); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		if err := scanBytes32(sender, &f.Envelope.Sender, "sender"); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		if err := scanBytes32(guid, &f.Envelope.GUID, "guid"); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.Envelope.Nonce = fromU64(nonce)
		f.Envelope.Message = body
		f.Code = ir.ErrorCode(code)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}
