package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/lzrecv/internal/ir"
)

// PutConfig writes the deployment configuration record, replacing any
// previous one.
func (q queries) PutConfig(ctx context.Context, cfg ir.Config) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("put config: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO config (id, body, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, string(body), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put config: %w", err)
	}
	return nil
}

// Config returns the deployment configuration record.
// Returns ir.ErrNotConfigured if none has been written.
func (q queries) Config(ctx context.Context) (ir.Config, error) {
	var body string
	err := q.q.QueryRowContext(ctx, `SELECT body FROM config WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Config{}, ir.NewError(ir.ErrCodeNotConfigured, "no configuration record")
	}
	if err != nil {
		return ir.Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg ir.Config
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return ir.Config{}, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

// Settings are the deployment choices stored next to the configuration
// record.
type Settings struct {
	Variant          string `json:"variant"`
	Acknowledgements bool   `json:"acknowledgements"`
}

// PutSettings writes the deployment settings, replacing any previous ones.
func (q queries) PutSettings(ctx context.Context, st Settings) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO settings (id, variant, acknowledgements, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			variant = excluded.variant,
			acknowledgements = excluded.acknowledgements,
			updated_at = excluded.updated_at
	`, st.Variant, st.Acknowledgements, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}

// Settings returns the deployment settings. ok is false if none have been
// written.
func (q queries) Settings(ctx context.Context) (Settings, bool, error) {
	var st Settings
	err := q.q.QueryRowContext(ctx, `SELECT variant, acknowledgements FROM settings WHERE id = 1`).
		Scan(&st.Variant, &st.Acknowledgements)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("read settings: %w", err)
	}
	return st, true, nil
}

// PutPeer sets the trusted sender for a source chain.
func (q queries) PutPeer(ctx context.Context, p ir.Peer) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO peers (src_eid, address, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(src_eid) DO UPDATE SET address = excluded.address, updated_at = excluded.updated_at
	`, p.SrcEID, p.Address[:], time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put peer: %w", err)
	}
	return nil
}

// Peer returns the trusted sender for srcEID. ok is false if none is set.
func (q queries) Peer(ctx context.Context, srcEID uint32) (ir.Peer, bool, error) {
	var raw []byte
	err := q.q.QueryRowContext(ctx, `SELECT address FROM peers WHERE src_eid = ?`, srcEID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Peer{}, false, nil
	}
	if err != nil {
		return ir.Peer{}, false, fmt.Errorf("read peer: %w", err)
	}
	p := ir.Peer{SrcEID: srcEID}
	if err := scanBytes32(raw, &p.Address, "address"); err != nil {
		return ir.Peer{}, false, fmt.Errorf("read peer: %w", err)
	}
	return p, true, nil
}

// Peers returns every configured peer ordered by source chain.
func (q queries) Peers(ctx context.Context) ([]ir.Peer, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT src_eid, address FROM peers ORDER BY src_eid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query peers: %w", err)
	}
	defer rows.Close()

	peers := []ir.Peer{}
	for rows.Next() {
		var p ir.Peer
		var raw []byte
		if err := rows.Scan(&p.SrcEID, &raw); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		if err := scanBytes32(raw, &p.Address, "address"); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		peers = append(peers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peers: %w", err)
	}
	return peers, nil
}

// AppState returns the counter/text fields. A store that has never been
// written returns the zero state.
func (q queries) AppState(ctx context.Context) (ir.AppState, error) {
	var st ir.AppState
	var counter int64
	err := q.q.QueryRowContext(ctx, `SELECT text, counter FROM app_state WHERE id = 1`).Scan(&st.Text, &counter)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.AppState{}, nil
	}
	if err != nil {
		return ir.AppState{}, fmt.Errorf("read app state: %w", err)
	}
	st.Counter = fromU64(counter)
	return st, nil
}

// PutAppState replaces the counter/text fields.
func (q queries) PutAppState(ctx context.Context, st ir.AppState) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO app_state (id, text, counter) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text = excluded.text, counter = excluded.counter
	`, st.Text, u64(st.Counter))
	if err != nil {
		return fmt.Errorf("put app state: %w", err)
	}
	return nil
}
