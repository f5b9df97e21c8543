package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// jobTimeout bounds one vectorization job.
const jobTimeout = 10 * time.Minute

// Processor vectorizes one document.
type Processor interface {
	Process(ctx context.Context, documentID int64, filePath string) (entities.DocumentStatus, error)
}

// WorkerServer accepts ingestion webhooks and runs them on a bounded pool.
type WorkerServer struct {
	processor   Processor
	addr        string
	concurrency int
	jobs        chan entities.IngestJob
	checks      map[string]HealthCheck

	mu      sync.RWMutex
	closing bool
}

// NewWorkerServer creates a worker running at most concurrency jobs at once.
func NewWorkerServer(processor Processor, addr string, concurrency int) *WorkerServer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerServer{
		processor:   processor,
		addr:        addr,
		concurrency: concurrency,
		jobs:        make(chan entities.IngestJob, concurrency*16),
		checks:      make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a dependency probed by /api/health.
func (s *WorkerServer) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// Handler returns the worker routes.
func (s *WorkerServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/health", healthHandler(s.checks))
	return loggingMiddleware("worker", mux)
}

// Start serves the webhook and runs the pool until ctx is done. Jobs already
// accepted are drained before Start returns.
func (s *WorkerServer) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(ctx, "worker", &http.Server{
			Addr:              s.addr,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      30 * time.Second,
		})
	})
	g.Go(func() error { return s.Run(ctx) })
	return g.Wait()
}

// Run executes queued jobs without serving the webhook. Jobs reach it through
// Trigger, which lets one process both accept uploads and vectorize them.
func (s *WorkerServer) Run(ctx context.Context) error {
	s.runPool(ctx)
	return nil
}

// Trigger queues a job on the local pool, implementing ports.WorkflowTrigger.
func (s *WorkerServer) Trigger(ctx context.Context, documentID int64, filePath string) error {
	if !s.enqueue(entities.IngestJob{DocumentID: documentID, FilePath: filePath}) {
		return errs.WorkflowTrigger(nil, "workflow trigger failed", "worker queue is full or shutting down")
	}
	return nil
}

// Process runs one job. It returns an error only when nothing was recorded
// for the document, so a redelivery may succeed.
func (s *WorkerServer) Process(ctx context.Context, job entities.IngestJob) error {
	status, err := s.processor.Process(ctx, job.DocumentID, job.FilePath)
	if err != nil && !status.Terminal() {
		return err
	}
	return nil
}

func (s *WorkerServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	var job entities.IngestJob
	if err := decodeJSON(w, r, &job); err != nil {
		writeError(w, err)
		return
	}
	if job.DocumentID <= 0 || strings.TrimSpace(job.FilePath) == "" {
		writeError(w, errs.InvalidInput("document_id and file_path are required"))
		return
	}

	if !s.enqueue(job) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "worker queue is full or shutting down"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "document_id": job.DocumentID})
}

// enqueue queues job unless the queue is full or the pool has stopped taking work.
func (s *WorkerServer) enqueue(job entities.IngestJob) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closing {
		return false
	}
	select {
	case s.jobs <- job:
		return true
	default:
		return false
	}
}

// runPool dispatches queued jobs until ctx is done. It then stops accepting
// jobs, runs every job still queued and waits for all of them. Jobs run
// detached from ctx so shutdown does not fail them.
func (s *WorkerServer) runPool(ctx context.Context) {
	var pool errgroup.Group
	pool.SetLimit(s.concurrency)
	defer pool.Wait()

	run := func(job entities.IngestJob) {
		pool.Go(func() error {
			jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
			defer cancel()
			if err := s.Process(jobCtx, job); err != nil {
				log.Warn().Err(err).Str("component", "worker").Int64("document_id", job.DocumentID).Msg("job failed before any state was recorded")
			}
			return nil
		})
	}

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.closing = true
			s.mu.Unlock()
			if n := len(s.jobs); n > 0 {
				log.Info().Str("component", "worker").Int("jobs", n).Msg("draining queued jobs before shutdown")
			}
			for {
				select {
				case job := <-s.jobs:
					run(job)
				default:
					return
				}
			}
		case job := <-s.jobs:
			run(job)
		}
	}
}
