package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// SourceChecksum returns the hex SHA-256 of the raw source bytes. It is
// recorded on the Document so unchanged content is recognizable across
// reprocess runs.
func SourceChecksum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ChunksDigest digests the chunk sequence: ordinal, page and content of
// every chunk in order, with separators that keep field boundaries
// unambiguous. The digest is sealed into both the chunk manifest and the
// index snapshot; a mismatch on load means the two artifacts come from
// different ingestion generations and the set is rejected instead of
// producing silently wrong citations.
func ChunksDigest(chunks []Chunk) [32]byte {
	h := sha256.New()
	for _, c := range chunks {
		h.Write([]byte(strconv.Itoa(c.Ordinal)))
		h.Write([]byte{0x00})
		h.Write([]byte(strconv.Itoa(c.Page)))
		h.Write([]byte{0x00})
		h.Write([]byte(c.Content))
		h.Write([]byte{0x1e})
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
