// Package vectordb provides vector store adapters and the ranking rules
// shared by every similarity search backend.
package vectordb

import (
	"math"
	"sort"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// CheckArgs validates the search parameters every backend accepts.
func CheckArgs(threshold float64, limit int) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return errs.InvalidInput("similarity threshold must be within [0, 1]")
	}
	if limit <= 0 {
		return errs.InvalidInput("search limit must be positive")
	}
	return nil
}

// CosineSimilarity calculates cosine similarity between two vectors.
// Vectors of different length or zero norm score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank keeps documents scoring strictly above threshold, orders them by
// similarity descending (ties keep input order) and truncates to limit.
func Rank(docs []entities.RelevantDocument, threshold float64, limit int) []entities.RelevantDocument {
	kept := make([]entities.RelevantDocument, 0, len(docs))
	for _, d := range docs {
		if d.Similarity > threshold {
			kept = append(kept, d)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Similarity > kept[j].Similarity
	})

	if limit >= 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
