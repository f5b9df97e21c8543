// Package parser extracts text from binary uploads through an external
// extraction service.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// maxResponse bounds the extracted text accepted from the service.
const maxResponse = 64 << 20

// PDFServiceParser implements ports.DocumentParser over HTTP.
type PDFServiceParser struct {
	serviceURL string
	client     *http.Client
}

// NewPDFServiceParser creates a new PDF parser that calls the extraction service.
func NewPDFServiceParser(serviceURL string, timeout time.Duration) *PDFServiceParser {
	if serviceURL == "" {
		serviceURL = "http://localhost:8081"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PDFServiceParser{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// parseResponse is the extraction service response format.
type parseResponse struct {
	Text    string `json:"text"`
	Pages   int    `json:"pages"`
	Library string `json:"library,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Parse extracts text from PDF bytes. An unreachable service is an upstream
// failure; a document the service cannot read is invalid input.
func (p *PDFServiceParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-File-Name", filename)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", errs.Upstream(err, "calling PDF service")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return "", errs.Upstream(err, "reading PDF service response")
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", errs.Upstream(errors.Errorf("PDF service returned status %d", resp.StatusCode), "calling PDF service")
		}
		return "", errs.Upstream(err, "decoding PDF service response")
	}

	if result.Error != "" {
		return "", errs.InvalidInput("PDF parse error: " + result.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errs.Upstream(errors.Errorf("PDF service returned status %d", resp.StatusCode), "calling PDF service")
	}

	log.Debug().Str("component", "parser").Str("file_name", filename).Int("pages", result.Pages).Str("library", result.Library).Msg("pdf parsed")
	return result.Text, nil
}

// SupportedFormats returns formats this parser handles.
func (p *PDFServiceParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// IsServiceHealthy checks if the extraction service is running.
func (p *PDFServiceParser) IsServiceHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serviceURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
