// Package usecases contains application business rules.
// Usecases orchestrate entities and depend only on port interfaces.
package usecases

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
)

// IngestUseCase owns the creation of Document records and the compensating
// transition to error when the external workflow cannot be triggered.
// The transition to completed belongs to the workflow, not to this usecase.
type IngestUseCase struct {
	docs    ports.DocumentRepository
	trigger ports.WorkflowTrigger
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
func NewIngestUseCase(docs ports.DocumentRepository, trigger ports.WorkflowTrigger) *IngestUseCase {
	return &IngestUseCase{docs: docs, trigger: trigger}
}

// Ingest registers an already stored file as processing and triggers the workflow.
func (uc *IngestUseCase) Ingest(ctx context.Context, fileName string) (*entities.Document, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, errs.InvalidInput("fileName is required")
	}
	doc, err := uc.docs.Create(ctx, fileName, entities.StatusProcessing)
	if err != nil {
		return nil, classify(err, "inserting document")
	}
	if err := uc.start(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Accept registers a file dropped into the upload directory as pending and
// triggers the workflow. On failure the dropped file is removed, best-effort.
func (uc *IngestUseCase) Accept(ctx context.Context, path string) (*entities.Document, error) {
	fileName := filepath.Base(path)
	if fileName == "." || fileName == string(filepath.Separator) {
		return nil, errs.InvalidInput("upload path has no file name")
	}

	doc, err := uc.docs.Create(ctx, fileName, entities.StatusPending)
	if err != nil {
		removeUpload(path)
		return nil, classify(err, "inserting document")
	}
	if err := uc.start(ctx, doc); err != nil {
		removeUpload(path)
		return doc, err
	}
	return doc, nil
}

// Retrigger resends the workflow trigger for a document that is still in flight.
// Terminal documents are never re-triggered.
func (uc *IngestUseCase) Retrigger(ctx context.Context, id int64) (*entities.Document, error) {
	doc, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status.Terminal() {
		return doc, errs.InvalidInput("document is in terminal state " + string(doc.Status))
	}
	if err := uc.start(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Get returns one document.
func (uc *IngestUseCase) Get(ctx context.Context, id int64) (*entities.Document, error) {
	doc, err := uc.docs.Get(ctx, id)
	if err != nil {
		return nil, classify(err, "loading document")
	}
	return doc, nil
}

// List returns the newest documents first.
func (uc *IngestUseCase) List(ctx context.Context, limit int) ([]entities.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	docs, err := uc.docs.List(ctx, limit)
	if err != nil {
		return nil, classify(err, "listing documents")
	}
	return docs, nil
}

// start triggers the workflow and compensates with an error transition when
// the trigger is not accepted.
func (uc *IngestUseCase) start(ctx context.Context, doc *entities.Document) error {
	logger := log.With().Str("component", "ingest").Int64("document_id", doc.ID).Str("file_name", doc.FileName).Logger()

	triggerErr := uc.trigger.Trigger(ctx, doc.ID, doc.FileName)
	if triggerErr == nil {
		logger.Info().Str("status", string(doc.Status)).Msg("ingestion workflow triggered")
		return nil
	}

	// Compensate even if the caller went away: the record must not stay in flight.
	changed, err := uc.docs.MarkErrored(context.WithoutCancel(ctx), doc.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to mark document as errored")
	} else if changed {
		doc.Status = entities.StatusError
	}
	logger.Warn().Err(triggerErr).Str("status", string(doc.Status)).Msg("ingestion workflow trigger failed")

	if errs.Is(triggerErr, errs.KindWorkflowTriggerFailure) {
		return triggerErr
	}
	return errs.WorkflowTrigger(triggerErr, "workflow trigger failed", triggerErr.Error())
}

func removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("component", "ingest").Str("path", path).Msg("failed to remove upload")
	}
}
