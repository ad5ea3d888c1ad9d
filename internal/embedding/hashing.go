package embedding

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// HashingModel names the built-in embedder in logs and index metadata.
const HashingModel = "feature-hashing-v1"

// HashingEmbedder maps each token to a signed bucket via MD5 and weights it by
// log term frequency. Identical texts produce identical unit vectors and texts
// sharing words land close together, which is enough for offline runs and
// tests.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder creates a HashingEmbedder with the given dimension.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashingEmbedder{dimensions: dimensions}
}

func (e *HashingEmbedder) Dimension() int { return e.dimensions }

func (e *HashingEmbedder) Model() string { return HashingModel }

// Embed implements Embedder.
func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashingEmbedder) embed(text string) []float32 {
	counts := make(map[string]int)
	for _, tok := range tokenize(text) {
		counts[tok]++
	}

	vec := make([]float32, e.dimensions)
	for tok, n := range counts {
		sum := md5.Sum([]byte(tok))
		bucket := binary.LittleEndian.Uint32(sum[0:4]) % uint32(e.dimensions)
		weight := float32(1 + math.Log(float64(n)))
		if sum[4]&1 == 1 {
			weight = -weight
		}
		vec[bucket] += weight
	}
	normalize(vec)
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
