// Package usecases - vectorize.go is the workflow side of ingestion: it turns a
// stored file into embedded chunks and owns the transition to completed.
package usecases

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// VectorizeUseCase chunks, embeds and stores an uploaded document.
type VectorizeUseCase struct {
	docs         ports.DocumentRepository
	loader       ports.DocumentLoader
	embedder     ports.EmbeddingService
	vectors      ports.VectorWriter
	chunkSize    int
	chunkOverlap int
}

// NewVectorizeUseCase creates a VectorizeUseCase with injected dependencies.
func NewVectorizeUseCase(
	docs ports.DocumentRepository,
	loader ports.DocumentLoader,
	embedder ports.EmbeddingService,
	vectors ports.VectorWriter,
	chunkSize, chunkOverlap int,
) *VectorizeUseCase {
	if chunkSize <= 0 {
		chunkSize = 1000 // characters
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &VectorizeUseCase{
		docs:         docs,
		loader:       loader,
		embedder:     embedder,
		vectors:      vectors,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Process vectorizes one document and marks it completed, or errored on failure.
// Terminal documents are left untouched. The returned status is the state the
// document ended in; a non-terminal status with an error means nothing was
// recorded and the job may be retried.
func (uc *VectorizeUseCase) Process(ctx context.Context, documentID int64, filePath string) (entities.DocumentStatus, error) {
	logger := log.With().Str("component", "vectorize").Int64("document_id", documentID).Str("file_path", filePath).Logger()

	doc, err := uc.docs.Get(ctx, documentID)
	if err != nil {
		return "", classify(err, "loading document")
	}
	if doc.Status.Terminal() {
		logger.Info().Str("status", string(doc.Status)).Msg("document already terminal; skipping")
		return doc.Status, nil
	}

	n, err := uc.vectorize(ctx, doc, filePath)
	if err != nil {
		logger.Warn().Err(err).Msg("vectorization failed")
		if _, markErr := uc.docs.MarkErrored(context.WithoutCancel(ctx), documentID); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to mark document as errored")
			return doc.Status, err
		}
		return entities.StatusError, err
	}

	if _, err := uc.docs.MarkCompleted(ctx, documentID); err != nil {
		return doc.Status, classify(err, "marking document completed")
	}
	logger.Info().Int("chunks", n).Msg("document vectorized")
	return entities.StatusCompleted, nil
}

func (uc *VectorizeUseCase) vectorize(ctx context.Context, doc *entities.Document, filePath string) (int, error) {
	text, err := uc.loader.Load(ctx, filePath)
	if err != nil {
		return 0, classify(err, "loading upload")
	}

	// 1. Chunk the document
	chunks := uc.chunkText(doc, text)
	if len(chunks) == 0 {
		return 0, errs.InvalidInput("no text could be extracted from " + filepath.Base(filePath))
	}

	// 2. Extract text for embedding
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	// 3. Generate embeddings via port
	embeddings, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, classify(err, "embedding chunks")
	}
	if len(embeddings) != len(chunks) {
		return 0, errs.Upstream(errors.Errorf("got %d embeddings for %d chunks", len(embeddings), len(chunks)), "embedding chunks")
	}

	// 4. Attach embeddings to chunks
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	// 5. Store vectors
	if err := uc.vectors.Store(ctx, chunks); err != nil {
		return 0, classify(err, "storing vectors")
	}
	return len(chunks), nil
}

// chunkText splits content into overlapping chunks, breaking at word boundaries.
func (uc *VectorizeUseCase) chunkText(doc *entities.Document, text string) []entities.Chunk {
	content := strings.TrimSpace(text)
	if len(content) == 0 {
		return nil
	}

	var chunks []entities.Chunk
	start := 0
	index := 0

	for start < len(content) {
		end := start + uc.chunkSize
		if end > len(content) {
			end = len(content)
		} else {
			end = runeStart(content, end)
			if end <= start {
				// chunk size is smaller than one rune
				_, size := utf8.DecodeRuneInString(content[start:])
				end = start + size
			}
		}

		// Try to break at word boundary
		if end < len(content) {
			lastSpace := strings.LastIndex(content[start:end], " ")
			if lastSpace > 0 {
				end = start + lastSpace
			}
		}

		chunkContent := strings.TrimSpace(content[start:end])
		if len(chunkContent) > 0 {
			chunks = append(chunks, entities.Chunk{
				DocumentID: doc.ID,
				FileName:   doc.FileName,
				Content:    chunkContent,
				Index:      index,
			})
			index++
		}

		if end >= len(content) {
			break
		}
		next := runeStart(content, end-uc.chunkOverlap)
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// runeStart moves i back to the first byte of the rune that contains it.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
