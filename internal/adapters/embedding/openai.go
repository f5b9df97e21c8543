// Package embedding provides the OpenAI-compatible embedding adapter.
// Clean Architecture: This is an adapter that implements ports.EmbeddingService.
// It knows about the embeddings endpoint but the domain layer doesn't.
package embedding

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// maxBatch is the largest number of inputs sent in one embeddings request.
const maxBatch = 96

// OpenAIAdapter implements ports.EmbeddingService using the embeddings API.
type OpenAIAdapter struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIAdapter creates a new embedding adapter. dimensions, when positive,
// is the vector length every response must have.
func NewOpenAIAdapter(client *openai.Client, model string, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = string(openai.AdaEmbeddingV2)
	}
	return &OpenAIAdapter{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}
}

// Embed generates an embedding for a single text.
func (a *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.InvalidInput("text to embed is empty")
	}
	out, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving input order.
func (a *OpenAIAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := a.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

func (a *OpenAIAdapter) embed(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debug().Str("component", "embedding").Str("model", a.model).Int("inputs", len(texts)).Msg("embedding request")

	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(a.model),
	})
	if err != nil {
		return nil, errs.Upstream(err, "embedding request failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, errs.Upstream(
			errors.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
			"malformed embedding response")
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, errs.Upstream(errors.Errorf("unexpected embedding index %d", d.Index), "malformed embedding response")
		}
		if len(d.Embedding) == 0 {
			return nil, errs.Upstream(errors.Errorf("embedding %d is empty", d.Index), "malformed embedding response")
		}
		if a.dimensions > 0 && len(d.Embedding) != a.dimensions {
			return nil, errs.Upstream(
				errors.Errorf("embedding has %d dimensions, want %d", len(d.Embedding), a.dimensions),
				"malformed embedding response")
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
