package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hupe1980/vecsearch/distance"
)

// Hashing is a deterministic, offline embedder based on the hashing trick:
// every token and every pair of adjacent tokens is hashed to a signed
// coordinate, weighted by its frequency, and the result is L2-normalized.
//
// Texts sharing vocabulary end up close under cosine similarity, which is
// enough for demos and tests. Text without tokens yields the zero vector.
type Hashing struct {
	dim int
}

// NewHashing creates a Hashing embedder producing vectors of length dim.
func NewHashing(dim int) (*Hashing, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding: invalid dimension %d", dim)
	}
	return &Hashing{dim: dim}, nil
}

// Dimension implements Embedder.
func (h *Hashing) Dimension() int { return h.dim }

// Embed implements Embedder.
func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := tokenize(text)
	tf := make(map[string]int, 2*len(tokens))
	for i, tok := range tokens {
		tf[tok]++
		if i > 0 {
			tf[tokens[i-1]+" "+tok]++
		}
	}

	vec := make([]float32, h.dim)
	hasher := fnv.New64a()
	for term, count := range tf {
		hasher.Reset()
		_, _ = hasher.Write([]byte(term))
		sum := hasher.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(h.dim)] += sign * float32(count)
	}

	distance.NormalizeL2InPlace(vec)
	return vec, nil
}

// tokenize lowercases text and splits it into runs of letters and digits.
// Identifiers written in camelCase are split at case changes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		start := 0
		runes := []rune(f)
		for i := 1; i < len(runes); i++ {
			if unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i-1]) {
				tokens = append(tokens, strings.ToLower(string(runes[start:i])))
				start = i
			}
		}
		tokens = append(tokens, strings.ToLower(string(runes[start:])))
	}
	return tokens
}
