package usecases

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

var defaultOpts = ChatOptions{SimilarityThreshold: 0.7, MaxContextChunks: 5, MaxHistoryLength: 10}

func userRequest(sessionID, content string) entities.ChatRequest {
	return entities.ChatRequest{
		SessionID: sessionID,
		Messages:  []entities.ChatTurn{{ID: "m1", Role: entities.RoleUser, Content: content}},
	}
}

func drain(t *testing.T, ts *TurnStream) (string, error) {
	t.Helper()
	var sb strings.Builder
	for {
		chunk, err := ts.Recv()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
	}
}

func TestChatUseCase_StreamsAndPersistsPair(t *testing.T) {
	search := &mockSearch{docs: []entities.RelevantDocument{{Content: "Refunds take 30 days.", Similarity: 0.91}}}
	history := &mockHistory{}
	llm := &mockLLM{chunks: []string{"Refunds ", "take ", "30 days."}}
	uc := NewChatUseCase(&mockEmbedder{}, search, history, llm, nil, defaultOpts)

	ts, err := uc.Turn(context.Background(), userRequest("s1", "How long do refunds take?"))
	require.NoError(t, err)
	defer ts.Close()

	answer, err := drain(t, ts)
	require.NoError(t, err)
	assert.Equal(t, "Refunds take 30 days.", answer)
	assert.Equal(t, 1, history.appends)

	rows, _ := history.Recent(context.Background(), "s1", 10)
	require.Len(t, rows, 2)
	assert.Equal(t, entities.StoredUser, rows[0].Role)
	assert.Equal(t, "How long do refunds take?", rows[0].Content)
	assert.Equal(t, entities.StoredAI, rows[1].Role)
	assert.Equal(t, "Refunds take 30 days.", rows[1].Content)

	assert.Equal(t, 0.7, search.gotThreshold)
	assert.Equal(t, 5, search.gotLimit)
	assert.Contains(t, llm.gotSystem, "Refunds take 30 days.")
	assert.Equal(t, "How long do refunds take?", llm.gotUser)
}

func TestChatUseCase_NoContextStillStreams(t *testing.T) {
	history := &mockHistory{}
	llm := &mockLLM{chunks: []string{"I could not find that in the documents."}}
	uc := NewChatUseCase(&mockEmbedder{}, &mockSearch{docs: nil}, history, llm, nil, defaultOpts)

	ts, err := uc.Turn(context.Background(), userRequest("s1", "What is the refund policy?"))
	require.NoError(t, err)

	answer, err := drain(t, ts)
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Contains(t, llm.gotSystem, blockRule+"\n"+NoContextPlaceholder+"\n"+blockRule)
	assert.Equal(t, 2, history.count("s1"))
}

func TestChatUseCase_HistoryRenderedInOrder(t *testing.T) {
	history := &mockHistory{}
	history.seed("s1", [2]string{"first question", "first answer"})
	history.seed("other", [2]string{"unrelated", "nope"})
	llm := &mockLLM{chunks: []string{"ok"}}
	uc := NewChatUseCase(&mockEmbedder{}, &mockSearch{}, history, llm, nil, defaultOpts)

	ts, err := uc.Turn(context.Background(), userRequest("s1", "second question"))
	require.NoError(t, err)
	defer ts.Close()

	assert.Equal(t, 10, history.gotMax)
	assert.Contains(t, llm.gotSystem, "User: first question\nAssistant: first answer")
	assert.NotContains(t, llm.gotSystem, "unrelated")
}

func TestChatUseCase_MissingEmbeddingAbortsBeforeModel(t *testing.T) {
	embedder := &mockEmbedder{embedFn: func(string) ([]float32, error) {
		return nil, errs.Upstream(errors.New("response has no embedding field"), "malformed embedding response")
	}}
	search := &mockSearch{}
	llm := &mockLLM{}
	uc := NewChatUseCase(embedder, search, &mockHistory{}, llm, nil, defaultOpts)

	ts, err := uc.Turn(context.Background(), userRequest("s1", "hello"))
	require.Error(t, err)
	assert.Nil(t, ts)
	assert.Equal(t, errs.KindUpstreamUnavailable, errs.KindOf(err))
	assert.Equal(t, 0, search.calls)
	assert.Equal(t, 0, llm.calls)
}

func TestChatUseCase_Validation(t *testing.T) {
	embedder := &mockEmbedder{}
	uc := NewChatUseCase(embedder, &mockSearch{}, &mockHistory{}, &mockLLM{}, nil, defaultOpts)

	_, err := uc.Turn(context.Background(), entities.ChatRequest{})
	assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))

	_, err = uc.Turn(context.Background(), userRequest("s1", "   "))
	assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))
	assert.Equal(t, 0, embedder.calls)
}

func TestChatUseCase_SearchFailureIsFatal(t *testing.T) {
	llm := &mockLLM{}
	uc := NewChatUseCase(&mockEmbedder{}, &mockSearch{err: errors.New("rpc timeout")}, &mockHistory{}, llm, nil, defaultOpts)

	_, err := uc.Turn(context.Background(), userRequest("s1", "hello"))
	require.Error(t, err)
	assert.Equal(t, errs.KindUpstreamUnavailable, errs.KindOf(err))
	assert.Equal(t, 0, llm.calls)
}

func TestChatUseCase_ModelStartFailure(t *testing.T) {
	locker := &mockLocker{}
	history := &mockHistory{}
	uc := NewChatUseCase(&mockEmbedder{}, &mockSearch{}, history, &mockLLM{startErr: errors.New("401")}, locker, defaultOpts)

	_, err := uc.Turn(context.Background(), userRequest("s1", "hello"))
	require.Error(t, err)
	assert.Equal(t, errs.KindUpstreamUnavailable, errs.KindOf(err))
	assert.Equal(t, 1, locker.releases)
	assert.Equal(t, 0, history.appends)
}

func TestChatUseCase_MidStreamFailureSkipsPersistence(t *testing.T) {
	history := &mockHistory{}
	llm := &mockLLM{chunks: []string{"partial "}, midErr: errors.New("connection reset")}
	uc := NewChatUseCase(&mockEmbedder{}, &mockSearch{}, history, llm, nil, defaultOpts)

	ts, err := uc.Turn(context.Background(), userRequest("s1", "hello"))
	require.NoError(t, err)

	text, err := drain(t, ts)
	require.Error(t, err)
	assert.Equal(t, "partial ", text)
	assert.Equal(t, 0, history.appends)
	assert.Equal(t, 0, history.count("s1"))
	assert.Equal(t, 1, llm.stream.closed)
}

func TestChatUseCase_PersistenceFailureIsNonFatal(t *testing.T) {
	history := &mockHistory{appendErr: errors.New("database is locked")}
	llm := &mockLLM{chunks: []string{"answer"}}
	uc := NewChatUseCase(&mockEmbedder{}, &mockSearch{}, history, llm, nil, defaultOpts)

	ts, err := uc.Turn(context.Background(), userRequest("s1", "hello"))
	require.NoError(t, err)

	answer, err := drain(t, ts)
	require.NoError(t, err)
	assert.Equal(t, "answer", answer)
	assert.Equal(t, 1, history.appends)
	assert.Equal(t, 0, history.count("s1"))
}

func TestChatUseCase_CloseBeforeEOFSkipsPersistence(t *testing.T) {
	history := &mockHistory{}
	locker := &mockLocker{}
	llm := &mockLLM{chunks: []string{"a", "b", "c"}}
	uc := NewChatUseCase(&mockEmbedder{}, &mockSearch{}, history, llm, locker, defaultOpts)

	ts, err := uc.Turn(context.Background(), userRequest("s1", "hello"))
	require.NoError(t, err)

	_, err = ts.Recv()
	require.NoError(t, err)
	require.NoError(t, ts.Close())

	_, err = ts.Recv()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, history.appends)
	assert.Equal(t, 1, locker.releases)
}

func TestChatUseCase_CancelledContextSkipsPersistence(t *testing.T) {
	history := &mockHistory{}
	llm := &mockLLM{chunks: []string{"a"}}
	uc := NewChatUseCase(&mockEmbedder{}, &mockSearch{}, history, llm, nil, defaultOpts)

	ctx, cancel := context.WithCancel(context.Background())
	ts, err := uc.Turn(ctx, userRequest("s1", "hello"))
	require.NoError(t, err)

	_, err = ts.Recv()
	require.NoError(t, err)
	cancel()

	_, err = ts.Recv()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, history.appends)
}

func TestChatUseCase_FinalizesOnce(t *testing.T) {
	history := &mockHistory{}
	locker := &mockLocker{}
	uc := NewChatUseCase(&mockEmbedder{}, &mockSearch{}, history, &mockLLM{chunks: []string{"x"}}, locker, defaultOpts)

	ts, err := uc.Turn(context.Background(), userRequest("s1", "hello"))
	require.NoError(t, err)

	_, err = drain(t, ts)
	require.NoError(t, err)
	_, err = ts.Recv()
	assert.Equal(t, io.EOF, err)
	require.NoError(t, ts.Close())

	assert.Equal(t, 1, history.appends)
	assert.Equal(t, 1, locker.locks)
	assert.Equal(t, 1, locker.releases)
}

func TestChatUseCase_GeneratesSessionID(t *testing.T) {
	uc := NewChatUseCase(&mockEmbedder{}, &mockSearch{}, &mockHistory{}, &mockLLM{}, nil, defaultOpts)

	ts, err := uc.Turn(context.Background(), userRequest("", "hello"))
	require.NoError(t, err)
	defer ts.Close()
	assert.Len(t, ts.SessionID, 36)
}

func TestChatUseCase_LockFailure(t *testing.T) {
	history := &mockHistory{}
	uc := NewChatUseCase(&mockEmbedder{}, &mockSearch{}, history, &mockLLM{}, &mockLocker{err: context.DeadlineExceeded}, defaultOpts)

	_, err := uc.Turn(context.Background(), userRequest("s1", "hello"))
	require.Error(t, err)
	assert.Equal(t, errs.KindUpstreamUnavailable, errs.KindOf(err))
}
