// Package embedding derives fixed-dimension unit vectors from text. The
// embedding is deterministic for a given input, so recomputing it for a
// redelivered message yields the same vector, and the rolling content hash
// it is built on doubles as the canonical duplicate fingerprint.
package embedding

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
)

// Dimension is the fixed vector dimension registered with the similarity index.
const Dimension = 384

// Embed converts text into an L2-normalized Dimension-length vector.
// A degenerate input (nothing to accumulate) yields the zero vector.
func Embed(text string) (vector []float32) {
	defer func() {
		if r := recover(); r != nil {
			vector = FallbackVector(text)
		}
	}()

	v := make([]float64, Dimension)

	// Word/character accumulation over the normalized text.
	for i, word := range strings.Fields(normalize(text)) {
		j := 0
		for _, c := range word {
			idx := (int(c) * (i + 1) * (j + 1)) % Dimension
			v[idx] += math.Sin(float64(c)/100) * 0.1
			j++
		}
	}

	// Blend in a hash-derived component over every index so distinct texts
	// with similar characters still separate.
	h := ContentHash(text)
	for k := 0; k < Dimension; k++ {
		v[k] += math.Sin(float64(h+uint32(k))/1000) * 0.05
	}

	return l2Normalize(v)
}

// ContentHash is the 32-bit rolling hash of the original (unnormalized)
// text: h = h*31 + c over signed 32-bit arithmetic, absolute value taken.
// It is the canonical content fingerprint shared with duplicate detection.
func ContentHash(text string) uint32 {
	var h int32
	for _, c := range text {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return uint32(v)
}

// ContentHashString returns the content hash in the decimal string form
// used as the membership structure item key.
func ContentHashString(text string) string {
	return strconv.FormatUint(uint64(ContentHash(text)), 10)
}

// FallbackVector is the degraded-mode embedding used if Embed fails
// internally. It is seeded from the content hash so even the fallback stays
// deterministic for a given input.
func FallbackVector(text string) []float32 {
	rng := rand.New(rand.NewSource(int64(ContentHash(text))))
	v := make([]float64, Dimension)
	for k := range v {
		v[k] = rng.Float64()
	}
	return l2Normalize(v)
}

// normalize lowercases and strips everything but letters, digits and spaces.
func normalize(text string) string {
	lower := strings.ToLower(text)
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == ' ' {
			return r
		}
		return -1
	}, lower)
}

// l2Normalize divides every component by the vector magnitude. A zero
// magnitude yields the zero vector, not an error.
func l2Normalize(v []float64) []float32 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	mag := math.Sqrt(sum)

	out := make([]float32, len(v))
	if mag == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(x / mag)
	}
	return out
}
