package idempotency

import (
	"context"
	"time"
)

type State string

const (
	StateAbsent   State = ""
	StateInFlight State = "in_flight"
	StateDone     State = "done"
)

// Entry is what a store holds for one key.
type Entry struct {
	State     State     `json:"state"`
	Token     string    `json:"token,omitempty"`
	Payload   []byte    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store claims keys atomically. Claim must guarantee that for any key at most
// one caller holds an unexpired in-flight claim or a done entry exists.
type Store interface {
	// Claim either takes the key for token (claimed=true) or returns the entry
	// currently holding it. A returned StateAbsent entry means the holder went
	// away between the attempt and the read; the caller should try again.
	Claim(ctx context.Context, key, token string, lease time.Duration) (Entry, bool, error)
	// Complete stores payload under key if token still holds the claim.
	Complete(ctx context.Context, key, token string, payload []byte, expiresAt time.Time) error
	// Release drops the claim if token still holds it.
	Release(ctx context.Context, key, token string) error
}
