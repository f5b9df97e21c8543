package usecases

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// mockEmbedder implements ports.EmbeddingService for testing
type mockEmbedder struct {
	embedFn func(text string) ([]float32, error)
	calls   int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.embedFn != nil {
		return m.embedFn(text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		emb, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		result[i] = emb
	}
	return result, nil
}

// mockSearch implements ports.SimilaritySearch and ports.VectorWriter
type mockSearch struct {
	docs         []entities.RelevantDocument
	err          error
	calls        int
	gotThreshold float64
	gotLimit     int
	stored       []entities.Chunk
	storeErr     error
}

func (m *mockSearch) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]entities.RelevantDocument, error) {
	m.calls++
	m.gotThreshold = threshold
	m.gotLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.docs, nil
}

func (m *mockSearch) Store(ctx context.Context, chunks []entities.Chunk) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.stored = append(m.stored, chunks...)
	return nil
}

// mockHistory implements ports.HistoryStore in memory
type mockHistory struct {
	mu        sync.Mutex
	rows      []entities.DatabaseMessage
	recentErr error
	appendErr error
	appends   int
	gotMax    int
}

func (m *mockHistory) seed(sessionID string, pairs ...[2]string) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range pairs {
		n := len(m.rows)
		m.rows = append(m.rows,
			entities.DatabaseMessage{SessionID: sessionID, Role: entities.StoredUser, Content: p[0], CreatedAt: base.Add(time.Duration(n) * time.Second)},
			entities.DatabaseMessage{SessionID: sessionID, Role: entities.StoredAI, Content: p[1], CreatedAt: base.Add(time.Duration(n+1) * time.Second)},
		)
	}
}

func (m *mockHistory) Recent(ctx context.Context, sessionID string, maxCount int) ([]entities.DatabaseMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotMax = maxCount
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	var out []entities.DatabaseMessage
	for _, r := range m.rows {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	if len(out) > maxCount {
		out = out[len(out)-maxCount:]
	}
	return out, nil
}

func (m *mockHistory) AppendPair(ctx context.Context, sessionID, userContent, aiContent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.appendErr != nil {
		return m.appendErr
	}
	now := time.Now()
	m.rows = append(m.rows,
		entities.DatabaseMessage{SessionID: sessionID, Role: entities.StoredUser, Content: userContent, CreatedAt: now},
		entities.DatabaseMessage{SessionID: sessionID, Role: entities.StoredAI, Content: aiContent, CreatedAt: now.Add(time.Microsecond)},
	)
	return nil
}

func (m *mockHistory) count(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.SessionID == sessionID {
			n++
		}
	}
	return n
}

// mockLLM implements ports.CompletionStreamer
type mockLLM struct {
	chunks    []string
	midErr    error // returned after all chunks instead of io.EOF
	startErr  error
	calls     int
	gotSystem string
	gotUser   string
	stream    *mockStream
}

func (m *mockLLM) Stream(ctx context.Context, systemPrompt, userContent string) (ports.CompletionStream, error) {
	m.calls++
	m.gotSystem = systemPrompt
	m.gotUser = userContent
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.stream = &mockStream{chunks: m.chunks, endErr: m.midErr}
	return m.stream, nil
}

type mockStream struct {
	chunks []string
	pos    int
	endErr error
	closed int
}

func (s *mockStream) Recv() (string, error) {
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.endErr != nil {
		return "", s.endErr
	}
	return "", io.EOF
}

func (s *mockStream) Close() error {
	s.closed++
	return nil
}

// mockLocker implements ports.SessionLocker
type mockLocker struct {
	err      error
	locks    int
	releases int
}

func (m *mockLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	if m.err != nil {
		return nil, m.err
	}
	m.locks++
	var once sync.Once
	return func() { once.Do(func() { m.releases++ }) }, nil
}

// mockDocs implements ports.DocumentRepository in memory
type mockDocs struct {
	mu        sync.Mutex
	docs      map[int64]*entities.Document
	nextID    int64
	createErr error
}

func newMockDocs() *mockDocs {
	return &mockDocs{docs: make(map[int64]*entities.Document)}
}

func (m *mockDocs) Create(ctx context.Context, fileName string, status entities.DocumentStatus) (*entities.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	d := &entities.Document{ID: m.nextID, FileName: fileName, Status: status, CreatedAt: time.Now()}
	m.docs[d.ID] = d
	cp := *d
	return &cp, nil
}

func (m *mockDocs) Get(ctx context.Context, id int64) (*entities.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, errs.NotFound("document not found")
	}
	cp := *d
	return &cp, nil
}

func (m *mockDocs) List(ctx context.Context, limit int) ([]entities.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.Document
	for id := m.nextID; id > 0 && len(out) < limit; id-- {
		if d, ok := m.docs[id]; ok {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockDocs) transition(id int64, to entities.DocumentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.Status.Terminal() {
		return false, nil
	}
	d.Status = to
	return true, nil
}

func (m *mockDocs) MarkErrored(ctx context.Context, id int64) (bool, error) {
	return m.transition(id, entities.StatusError)
}

func (m *mockDocs) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	return m.transition(id, entities.StatusCompleted)
}

func (m *mockDocs) status(id int64) entities.DocumentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id].Status
}

// mockTrigger implements ports.WorkflowTrigger
type mockTrigger struct {
	err   error
	calls []int64
	paths []string
}

func (m *mockTrigger) Trigger(ctx context.Context, documentID int64, filePath string) error {
	m.calls = append(m.calls, documentID)
	m.paths = append(m.paths, filePath)
	return m.err
}

// mockLoader implements ports.DocumentLoader
type mockLoader struct {
	texts map[string]string
	err   error
	calls []string
}

func (m *mockLoader) Load(ctx context.Context, fileName string) (string, error) {
	m.calls = append(m.calls, fileName)
	if m.err != nil {
		return "", m.err
	}
	text, ok := m.texts[fileName]
	if !ok {
		return "", errs.NotFound("upload not found: " + fileName)
	}
	return text, nil
}
