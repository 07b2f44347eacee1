package templatestore

import (
	"crypto/sha256"
	"encoding/binary"
)

const embeddingDims = 16

// pseudoEmbedding derives a deterministic, fixed-dimension vector from
// text. Semantic search is not a correctness requirement here: the
// store is primarily a metadata-filtered key-value cache, and this
// exists only to satisfy backends that
// require a vector on every document.
func pseudoEmbedding(text string) []float64 {
	sum := sha256.Sum256([]byte(text))
	out := make([]float64, embeddingDims)
	for i := 0; i < embeddingDims; i++ {
		start := (i * 2) % (len(sum) - 1)
		v := binary.BigEndian.Uint16(sum[start : start+2])
		out[i] = float64(v) / float64(1<<16)
	}
	return out
}
