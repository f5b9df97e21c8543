package usecases

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// persistTimeout bounds the AppendPair call made after the last chunk.
const persistTimeout = 10 * time.Second

// TurnStream is the streaming half of a chat turn. Recv yields answer chunks;
// when the model stream is exhausted the turn is finalized exactly once:
// the concatenated answer and the user message are appended to history.
// A failed or cancelled stream is never finalized.
type TurnStream struct {
	SessionID string
	Sources   int

	ctx         context.Context
	stream      ports.CompletionStream
	history     ports.HistoryStore
	userContent string
	release     func()
	logger      zerolog.Logger

	mu       sync.Mutex
	buf      strings.Builder
	closed   bool
	finished bool
	once     sync.Once
}

// Recv returns the next chunk of the answer, or io.EOF once the answer is
// complete and the turn has been finalized.
func (t *TurnStream) Recv() (string, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return "", io.EOF
	}

	chunk, err := t.stream.Recv()
	if errors.Is(err, io.EOF) {
		if ctxErr := t.ctx.Err(); ctxErr != nil {
			t.abort(ctxErr)
			return "", ctxErr
		}
		t.finalize()
		return "", io.EOF
	}
	if err != nil {
		t.abort(err)
		return "", errs.Upstream(err, "completion stream failed")
	}

	t.mu.Lock()
	t.buf.WriteString(chunk)
	t.mu.Unlock()
	return chunk, nil
}

// Text returns the answer received so far.
func (t *TurnStream) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// Close aborts the upstream call if it is still running and releases the
// session. A turn closed before Recv reported io.EOF is not persisted.
func (t *TurnStream) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	finished := t.finished
	t.mu.Unlock()

	if !finished {
		t.logger.Warn().Str("turn_state", string(StateErrored)).Msg("turn closed before completion; skipping persistence")
	}
	err := t.stream.Close()
	t.release()
	return err
}

func (t *TurnStream) abort(cause error) {
	t.logger.Warn().Err(cause).Str("turn_state", string(StateErrored)).
		Int("partial_bytes", len(t.Text())).
		Msg("completion stream ended early; skipping persistence")
	_ = t.Close()
}

func (t *TurnStream) finalize() {
	t.once.Do(func() {
		t.mu.Lock()
		t.finished = true
		answer := t.buf.String()
		t.mu.Unlock()

		t.logger.Debug().Str("turn_state", string(StatePersisting)).Msg("turn state")
		ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), persistTimeout)
		defer cancel()
		if err := t.history.AppendPair(ctx, t.SessionID, t.userContent, answer); err != nil {
			t.logger.Error().Err(err).
				Str("error_kind", string(errs.KindPersistenceFailure)).
				Msg("failed to persist chat turn")
		}
		t.logger.Debug().Str("turn_state", string(StateDone)).Int("answer_bytes", len(answer)).Msg("turn state")
		_ = t.Close()
	})
}
