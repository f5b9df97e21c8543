// Package usecases - chat.go drives one chat turn through the RAG pipeline.
package usecases

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// TurnState names a step of the per-turn state machine.
type TurnState string

const (
	StateValidating  TurnState = "validating"
	StateEmbedding   TurnState = "embedding"
	StateRetrieving  TurnState = "retrieving"
	StateHistoryLoad TurnState = "history_load"
	StatePromptBuild TurnState = "prompt_build"
	StateStreaming   TurnState = "streaming"
	StatePersisting  TurnState = "persisting"
	StateDone        TurnState = "done"
	StateErrored     TurnState = "errored"
)

// ChatOptions holds the retrieval and history bounds of the pipeline.
type ChatOptions struct {
	SimilarityThreshold float64
	MaxContextChunks    int
	MaxHistoryLength    int
}

// ChatUseCase turns one incoming chat message into a streamed, persisted answer.
type ChatUseCase struct {
	embedder ports.EmbeddingService
	search   ports.SimilaritySearch
	history  ports.HistoryStore
	llm      ports.CompletionStreamer
	locker   ports.SessionLocker
	opts     ChatOptions
}

// NewChatUseCase creates a ChatUseCase with injected dependencies.
// locker may be nil, in which case turns of one session are not serialized.
func NewChatUseCase(
	embedder ports.EmbeddingService,
	search ports.SimilaritySearch,
	history ports.HistoryStore,
	llm ports.CompletionStreamer,
	locker ports.SessionLocker,
	opts ChatOptions,
) *ChatUseCase {
	if opts.MaxContextChunks <= 0 {
		opts.MaxContextChunks = 5
	}
	if opts.MaxHistoryLength < 0 {
		opts.MaxHistoryLength = 0
	}
	return &ChatUseCase{
		embedder: embedder,
		search:   search,
		history:  history,
		llm:      llm,
		locker:   locker,
		opts:     opts,
	}
}

// Turn runs every stage up to Streaming and hands back the answer stream.
// Any error returned here happened before streaming began, so nothing was
// sent to the caller and nothing was persisted.
func (uc *ChatUseCase) Turn(ctx context.Context, req entities.ChatRequest) (*TurnStream, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := log.With().Str("component", "chat").Str("session_id", sessionID).Logger()

	fail := func(state TurnState, err error) (*TurnStream, error) {
		logger.Warn().Err(err).
			Str("turn_state", string(StateErrored)).
			Str("failed_in", string(state)).
			Str("error_kind", string(errs.KindOf(err))).
			Msg("chat turn failed")
		return nil, err
	}

	// 1. Validate
	enter(logger, StateValidating)
	if len(req.Messages) == 0 {
		return fail(StateValidating, errs.InvalidInput("messages must not be empty"))
	}
	content := req.LastContent()
	if strings.TrimSpace(content) == "" {
		return fail(StateValidating, errs.InvalidInput("last message has no content"))
	}

	// 2. Embed the query
	enter(logger, StateEmbedding)
	queryEmbedding, err := uc.embedder.Embed(ctx, content)
	if err != nil {
		return fail(StateEmbedding, classify(err, "embedding query"))
	}

	// 3. Retrieve context
	enter(logger, StateRetrieving)
	docs, err := uc.search.Search(ctx, queryEmbedding, uc.opts.SimilarityThreshold, uc.opts.MaxContextChunks)
	if err != nil {
		return fail(StateRetrieving, classify(err, "searching vectors"))
	}

	release := func() {}
	if uc.locker != nil {
		release, err = uc.locker.Lock(ctx, sessionID)
		if err != nil {
			return fail(StateHistoryLoad, classify(err, "acquiring session lock"))
		}
	}

	// 4. Load history
	enter(logger, StateHistoryLoad)
	var msgs []entities.DatabaseMessage
	if uc.opts.MaxHistoryLength > 0 {
		msgs, err = uc.history.Recent(ctx, sessionID, uc.opts.MaxHistoryLength)
		if err != nil {
			release()
			return fail(StateHistoryLoad, classify(err, "loading history"))
		}
	}

	// 5. Build prompt
	enter(logger, StatePromptBuild)
	prompt := AssemblePrompt(contextTexts(docs), historyLines(msgs))

	// 6. Stream
	enter(logger, StateStreaming)
	stream, err := uc.llm.Stream(ctx, prompt, content)
	if err != nil {
		release()
		return fail(StateStreaming, classify(err, "starting completion"))
	}

	logger.Info().
		Int("context_chunks", len(docs)).
		Int("history_messages", len(msgs)).
		Msg("chat turn streaming")

	return &TurnStream{
		SessionID:   sessionID,
		Sources:     len(docs),
		ctx:         ctx,
		stream:      stream,
		history:     uc.history,
		userContent: content,
		release:     release,
		logger:      logger,
	}, nil
}

func enter(logger zerolog.Logger, state TurnState) {
	logger.Debug().Str("turn_state", string(state)).Msg("turn state")
}

// classify keeps an adapter's classification and treats anything else as an
// upstream failure.
func classify(err error, msg string) error {
	if errs.KindOf(err) == errs.KindUnknown {
		return errs.Upstream(err, msg)
	}
	return errors.Wrap(err, msg)
}

func contextTexts(docs []entities.RelevantDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Content
	}
	return out
}
