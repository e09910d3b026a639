package page

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// ChecksumFunc summarizes page content for thrashing protection.
type ChecksumFunc func(View) uint64

// WordSum adds up the page as little-endian 64-bit words. It is cheap and
// trivially collides, which is acceptable because merges always re-verify
// the full content.
func WordSum(v View) uint64 {
	var sum uint64
	b := v.b
	for len(b) >= 8 {
		sum += binary.LittleEndian.Uint64(b)
		b = b[8:]
	}
	for _, c := range b {
		sum += uint64(c)
	}
	return sum
}

// XXHash hashes the page with xxHash64.
func XXHash(v View) uint64 {
	return xxhash.Sum64(v.b)
}
