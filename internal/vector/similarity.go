// Package vector provides similarity helpers for normalized vectors.
package vector

import "math"

// CosineSimilarity returns cosine similarity between two vectors, clamped to [0,1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, dot/(math.Sqrt(normA)*math.Sqrt(normB))))
}
