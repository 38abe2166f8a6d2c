package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainTrace is the domain prefix for trace digests.
// The version suffix enables future algorithm migration.
const DomainTrace = "weft/trace/v1"

// hashWithDomain computes a SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest computes the content-addressed digest of a trace.
// Two runs producing the same events (same order, same fields) have the
// same digest; this is the runtime's determinism check.
func Digest(events []Event) (string, error) {
	canonical, err := CanonicalEvents(events)
	if err != nil {
		return "", fmt.Errorf("Digest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrace, canonical), nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when events are known to be valid.
func MustDigest(events []Event) string {
	d, err := Digest(events)
	if err != nil {
		panic(err)
	}
	return d
}
