package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// stateCounter disambiguates states minted within the same process even if
// the random source ever repeated itself. Uniqueness is a hard requirement
// for state values, not just high probability.
var stateCounter atomic.Uint64

// newState returns a fresh URL-safe state nonce: 128 bits of randomness plus
// a process-wide counter.
func newState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf[:16]); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	binary.BigEndian.PutUint64(buf[16:], stateCounter.Add(1))
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
