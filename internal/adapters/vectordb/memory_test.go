package vectordb

import (
	"context"
	"math"
	"testing"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

func TestInMemoryStore_StoreAndSearch(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	chunks := []entities.Chunk{
		{DocumentID: 1, Content: "hello", Embedding: []float32{1.0, 0.0, 0.0}},
		{DocumentID: 1, Content: "near", Embedding: []float32{0.9, 0.1, 0.0}},
		{DocumentID: 1, Content: "world", Embedding: []float32{0.0, 1.0, 0.0}},
	}
	if err := store.Store(ctx, chunks); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	results, err := store.Search(ctx, []float32{1.0, 0.0, 0.0}, 0.7, 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results above threshold, got %d", len(results))
	}
	if results[0].Content != "hello" {
		t.Error("hello should be top result")
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results should be sorted by similarity descending")
	}
}

func TestInMemoryStore_StoreReplacesDocument(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	store.Store(ctx, []entities.Chunk{
		{DocumentID: 1, Content: "old", Embedding: []float32{1, 0}},
		{DocumentID: 2, Content: "other", Embedding: []float32{0, 1}},
	})
	store.Store(ctx, []entities.Chunk{
		{DocumentID: 1, Content: "new", Embedding: []float32{1, 0}},
	})

	if store.Len() != 2 {
		t.Fatalf("expected 2 chunks, got %d", store.Len())
	}
	results, _ := store.Search(ctx, []float32{1, 0}, 0.5, 5)
	if len(results) != 1 || results[0].Content != "new" {
		t.Errorf("expected only the replacement chunk, got %+v", results)
	}
}

func TestRank(t *testing.T) {
	docs := []entities.RelevantDocument{
		{Content: "a", Similarity: 0.8},
		{Content: "b", Similarity: 0.7},
		{Content: "c", Similarity: 0.9},
		{Content: "d", Similarity: 0.8},
		{Content: "e", Similarity: 0.71},
	}

	got := Rank(docs, 0.7, 3)
	want := []string{"c", "a", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Content != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i].Content)
		}
	}

	// threshold is strict
	for _, d := range Rank(docs, 0.7, 10) {
		if d.Content == "b" {
			t.Error("a document exactly at the threshold must be excluded")
		}
	}

	if len(Rank(docs, 0.7, 0)) != 0 {
		t.Error("limit 0 should return nothing")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	if same := CosineSimilarity(a, b); same != 1.0 {
		t.Errorf("same vectors should have score 1.0, got %f", same)
	}
	if diff := CosineSimilarity(a, c); diff != 0.0 {
		t.Errorf("orthogonal vectors should have score 0.0, got %f", diff)
	}
	if CosineSimilarity(a, []float32{1, 0}) != 0 {
		t.Error("mismatched lengths should score 0")
	}
}

func TestInMemoryStore_SearchRejectsBadArgs(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	if err := store.Store(ctx, []entities.Chunk{{DocumentID: 1, Content: "x", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	cases := []struct {
		name      string
		threshold float64
		limit     int
	}{
		{"negative threshold", -0.1, 5},
		{"threshold above one", 1.5, 5},
		{"NaN threshold", math.NaN(), 5},
		{"zero limit", 0.5, 0},
		{"negative limit", 0.5, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Search(ctx, []float32{1, 0}, tc.threshold, tc.limit)
			if errs.KindOf(err) != errs.KindInvalidInput {
				t.Errorf("expected invalid input, got %v", err)
			}
		})
	}

	if _, err := store.Search(ctx, []float32{1, 0}, 1, 1); err != nil {
		t.Errorf("threshold 1 is in range: %v", err)
	}
}
