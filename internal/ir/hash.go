package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Domain prefixes for content-addressed digests.
// Version suffix enables future algorithm migration.
const (
	DomainEnvelope = "lzrecv/envelope/v1"
	DomainState    = "lzrecv/state/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Canonical projects the envelope onto the canonical value space.
// The nonce is a decimal string so values above 2^53 survive JSON readers.
func (e Envelope) Canonical() map[string]any {
	return map[string]any{
		"src_eid": e.SrcEID,
		"sender":  e.Sender.String(),
		"nonce":   strconv.FormatUint(e.Nonce, 10),
		"guid":    e.GUID.String(),
		"message": e.Message.String(),
	}
}

// EnvelopeDigest computes the content-addressed identity of an envelope.
// Extra data is excluded; it carries executor options, not message content.
func EnvelopeDigest(e Envelope) (string, error) {
	canonical, err := MarshalCanonical(e)
	if err != nil {
		return "", fmt.Errorf("EnvelopeDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEnvelope, canonical), nil
}

// StateDigest computes a digest over a canonical state snapshot.
// Two stores holding the same durable state produce the same digest.
func StateDigest(snapshot map[string]any) (string, error) {
	canonical, err := MarshalCanonical(snapshot)
	if err != nil {
		return "", fmt.Errorf("StateDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// MustEnvelopeDigest is like EnvelopeDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEnvelopeDigest(e Envelope) string {
	d, err := EnvelopeDigest(e)
	if err != nil {
		panic(err)
	}
	return d
}
