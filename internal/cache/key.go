package cache

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// DeriveKey returns a stable 16-hex-character key for a context request.
// Each part is length-prefixed so ("ab","c") and ("a","bc") never share a key.
func DeriveKey(subjectID, queryText string, topK int) string {
	d := xxhash.New()
	writePart(d, subjectID)
	writePart(d, queryText)
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], int64(topK))
	_, _ = d.Write(buf[:n])
	return fmt.Sprintf("%016x", d.Sum64())
}

func writePart(d *xxhash.Digest, s string) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	_, _ = d.Write(buf[:n])
	_, _ = d.WriteString(s)
}
