package streamcodec

import "github.com/zeebo/blake3"

// Digest returns a collision-resistant digest of s's byte-representation
// (spec §4.8). The wire format never transmits the digest itself; callers
// compare it against a previously-seen digest to decide whether Encode may
// omit the inline schema (header byte 0x00).
func Digest(s Schema) []byte {
	sum := blake3.Sum256(s.Bytes())
	return sum[:]
}
