package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dshills/agentmem/pkg/types"
)

// serializeVector encodes a float32 vector as a little-endian blob, the
// layout sqlite-vec expects for float32 vectors.
func serializeVector(vector []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, v := range vector {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("encode vector element: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// deserializeVector decodes a little-endian float32 blob.
func deserializeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}

	vector := make([]float32, len(blob)/4)
	reader := bytes.NewReader(blob)
	if err := binary.Read(reader, binary.LittleEndian, &vector); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return vector, nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Returns types.ErrDimensionMismatch when lengths disagree; a zero-norm
// vector yields similarity 0.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", types.ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("%w: empty vectors", types.ErrDimensionMismatch)
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
