package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type EventDedupeState string

const (
	// EventDedupeStateNew marks a delivery never seen before (or one whose
	// previous processing never completed).
	EventDedupeStateNew EventDedupeState = "new"
	// EventDedupeStateSeen marks a byte-identical redelivery of an event that
	// was already processed to completion.
	EventDedupeStateSeen EventDedupeState = "seen"
	// EventDedupeStateChanged marks a redelivery whose payload differs from
	// the recorded one. Dispatched anyway; the reconcilers converge on their
	// own idempotency checks.
	EventDedupeStateChanged EventDedupeState = "changed"
)

// EventDedupeStore remembers webhook deliveries whose reconciliation already
// completed, keyed by signal plus the ledger's event handle. Check is a
// read-only fast-path filter; MarkProcessed records completion and must only
// be called after the reconciler succeeded, so a failed run leaves the event
// unrecorded and the upstream redelivery reaches the reconciler again.
type EventDedupeStore interface {
	Check(ctx context.Context, signal, eventHandle, fingerprint string) (EventDedupeState, error)
	MarkProcessed(ctx context.Context, signal, eventHandle, fingerprint string, ttl time.Duration) error
}

// FingerprintPayload hashes a raw event body for dedupe comparison.
func FingerprintPayload(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
