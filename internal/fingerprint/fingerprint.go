// Package fingerprint derives stable content fingerprints from canonicalized
// competitor signals. All functions are pure and deterministic.
//
// Two signal sets that are field-wise equal after canonicalization yield the
// same fingerprint regardless of the wording of the source text — this is
// what gives the decision cache its meaning-based hit rate.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/taisaku-ai/taisaku/internal/model"
)

// Version prefix for the canonical encoding. A format change bumps the
// prefix so stale cache entries miss instead of colliding.
const v1Prefix = "v1:"

// Compute produces a versioned SHA-256 hex digest of the canonical signal
// fields. Each field is encoded as a 4-byte big-endian length prefix followed
// by the field bytes, which avoids delimiter collisions in freeform names.
func Compute(s model.Signals) string {
	s = s.Normalize()

	h := sha256.New()
	writeField := func(v string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		h.Write(lenBuf[:])
		h.Write([]byte(v))
	}
	writeField(string(s.Event))
	writeField(string(s.Sentiment))
	writeField(string(s.Clarity))
	writeField(string(s.ExecutionQuality))
	// Competitor name participates because cached advice text names the
	// competitor; lowercased so casing differences don't split the cache.
	writeField(strings.ToLower(s.CompetitorName))

	return v1Prefix + hex.EncodeToString(h.Sum(nil))
}
