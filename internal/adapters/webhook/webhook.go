// Package webhook triggers the ingestion workflow over HTTP.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// maxDetails caps how much of a failed response body is kept as error details.
const maxDetails = 4 << 10

// Trigger posts ingestion jobs to a workflow webhook.
type Trigger struct {
	url    string
	client *http.Client
}

// NewTrigger creates a webhook trigger for url.
func NewTrigger(url string, timeout time.Duration) *Trigger {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Trigger{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Trigger posts {document_id, file_path}. Any non-2xx response or transport
// failure is a workflow trigger failure carrying the response text.
func (t *Trigger) Trigger(ctx context.Context, documentID int64, filePath string) error {
	if t.url == "" {
		return errs.WorkflowTrigger(errors.New("webhook url is not configured"), "workflow trigger failed", "WEBHOOK_URL is empty")
	}

	body, err := json.Marshal(entities.IngestJob{DocumentID: documentID, FilePath: filePath})
	if err != nil {
		return errors.Wrap(err, "marshaling webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return errs.WorkflowTrigger(err, "workflow trigger failed", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errs.WorkflowTrigger(err, "workflow trigger failed", err.Error())
	}
	defer resp.Body.Close()

	logger := log.With().Str("component", "webhook").Int64("document_id", documentID).Int("status", resp.StatusCode).Logger()
	text, err := io.ReadAll(io.LimitReader(resp.Body, maxDetails))
	if err != nil {
		// The status alone decides the outcome; a truncated body only loses details.
		logger.Debug().Err(err).Msg("reading webhook response body")
	}
	logger.Debug().Msg("webhook responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		details := strings.TrimSpace(string(text))
		if details == "" {
			details = resp.Status
		}
		return errs.WorkflowTrigger(
			errors.Errorf("webhook returned status %d", resp.StatusCode),
			"workflow trigger failed",
			details,
		)
	}
	return nil
}
