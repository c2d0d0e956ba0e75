// Package sha256 digests page snapshots and URL sequences.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher with hex-encoded SHA-256.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data. It never fails.
func (*Hasher) Hash(data []byte) (string, error) {
	return Sum(data), nil
}

// Sum is the error-free form of Hash.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Short returns the first n hex characters of the digest of data, or the full
// digest when n is out of range.
func Short(data []byte, n int) string {
	full := Sum(data)
	if n <= 0 || n >= len(full) {
		return full
	}
	return full[:n]
}
