package engine

import (
	"context"
	"fmt"

	"github.com/roach88/lzrecv/internal/codec"
	"github.com/roach88/lzrecv/internal/ir"
	"github.com/roach88/lzrecv/internal/store"
)

// ReplayReport is the outcome of VerifyReplay.
type ReplayReport struct {
	Entries      int    `json:"entries"`
	Completed    int    `json:"completed"`
	Rejected     int    `json:"rejected"`
	Failed       int    `json:"failed"`
	SourceDigest string `json:"source_digest"`
	ReplayDigest string `json:"replay_digest"`
	Match        bool   `json:"match"`
}

// VerifyReplay re-executes src's inbound log against a fresh in-memory
// store and compares the resulting state digest with src's.
//
// The replica starts from src's configuration, peers and verified payload
// hashes, and executes each logged request at the time it originally
// executed. opts configure the replica engine and must match the options
// the original engine ran with (acknowledgements in particular).
//
// Replay is structural: it uses the same Execute path as live traffic, so
// a match shows that execution depends on nothing outside the log.
func VerifyReplay(ctx context.Context, src *store.Store, variant codec.Variant, opts ...Option) (ReplayReport, error) {
	var report ReplayReport

	replica, err := store.Open(store.MemoryPath)
	if err != nil {
		return report, fmt.Errorf("open replica: %w", err)
	}
	defer replica.Close()

	if err := seedReplica(ctx, src, replica); err != nil {
		return report, err
	}

	log, err := src.InboundLog(ctx)
	if err != nil {
		return report, fmt.Errorf("read inbound log: %w", err)
	}

	eng := New(replica, variant, opts...)
	for _, entry := range log {
		rc, _ := eng.Execute(ctx, Request{
			Envelope:  entry.Envelope,
			Resources: entry.Resources,
			At:        entry.ReceivedAt,
		})
		if rc.Digest != entry.Digest {
			return report, fmt.Errorf("inbound entry %d: digest %s does not match logged %s", entry.Seq, rc.Digest, entry.Digest)
		}
		report.Entries++
		switch rc.Status {
		case StatusComplete:
			report.Completed++
		case StatusFailed:
			report.Failed++
		default:
			report.Rejected++
		}
	}

	if report.SourceDigest, err = src.StateDigest(ctx); err != nil {
		return report, err
	}
	if report.ReplayDigest, err = replica.StateDigest(ctx); err != nil {
		return report, err
	}
	report.Match = report.SourceDigest == report.ReplayDigest
	return report, nil
}

// seedReplica copies the records execution reads but never writes.
func seedReplica(ctx context.Context, src, dst *store.Store) error {
	cfg, err := src.Config(ctx)
	configured := err == nil
	if err != nil && !ir.IsCode(err, ir.ErrCodeNotConfigured) {
		return fmt.Errorf("read config: %w", err)
	}
	peers, err := src.Peers(ctx)
	if err != nil {
		return fmt.Errorf("read peers: %w", err)
	}
	verified, err := src.VerifiedPayloads(ctx)
	if err != nil {
		return fmt.Errorf("read verified payloads: %w", err)
	}

	return dst.Update(ctx, func(tx *store.Tx) error {
		if configured {
			if err := tx.PutConfig(ctx, cfg); err != nil {
				return err
			}
		}
		for _, p := range peers {
			if err := tx.PutPeer(ctx, p); err != nil {
				return err
			}
		}
		for _, v := range verified {
			if err := tx.RecordVerifiedPayload(ctx, v.Key, v.Hash); err != nil {
				return err
			}
		}
		return nil
	})
}
