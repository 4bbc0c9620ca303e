package orders

import (
	"crypto/rand"
	"time"
)

const numberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewNumber returns a human-readable order number such as ORD-20260118-7KQ2ZD.
func NewNumber(now time.Time) string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = numberAlphabet[int(b[i])%len(numberAlphabet)]
	}
	return "ORD-" + now.UTC().Format("20060102") + "-" + string(b)
}
