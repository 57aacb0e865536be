package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lzrecv/internal/ir"
)

// LedgerRecord returns the ledger record for sender. ok is false if the
// sender has never deposited.
func (q queries) LedgerRecord(ctx context.Context, sender ir.Address20) (ir.LedgerRecord, bool, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT sender, total_deposited, deposit_count, last_updated, created_at
		FROM ledger WHERE sender = ?
	`, sender[:])
	rec, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.LedgerRecord{}, false, nil
	}
	if err != nil {
		return ir.LedgerRecord{}, false, fmt.Errorf("read ledger: %w", err)
	}
	return rec, true, nil
}

// PutLedgerRecord creates or replaces the ledger record for rec.Sender.
// created_at is kept from the first write.
func (q queries) PutLedgerRecord(ctx context.Context, rec ir.LedgerRecord) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO ledger (sender, total_deposited, deposit_count, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sender) DO UPDATE SET
			total_deposited = excluded.total_deposited,
			deposit_count = excluded.deposit_count,
			last_updated = excluded.last_updated
	`, rec.Sender[:], u64(rec.TotalDeposited), rec.DepositCount, rec.LastUpdated, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("put ledger: %w", err)
	}
	return nil
}

// LedgerRecords returns every ledger record ordered by sender bytes.
func (q queries) LedgerRecords(ctx context.Context) ([]ir.LedgerRecord, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT sender, total_deposited, deposit_count, last_updated, created_at
		FROM ledger ORDER BY sender ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	recs := []ir.LedgerRecord{}
	for rows.Next() {
		rec, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return recs, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLedger(s scanner) (ir.LedgerRecord, error) {
	var rec ir.LedgerRecord
	var sender []byte
	var total int64
	if err := s.Scan(&sender, &total, &rec.DepositCount, &rec.LastUpdated, &rec.CreatedAt); err != nil {
		return ir.LedgerRecord{}, err
	}
	if err := scanAddress20(sender, &rec.Sender, "sender"); err != nil {
		return ir.LedgerRecord{}, err
	}
	rec.TotalDeposited = fromU64(total)
	return rec, nil
}
