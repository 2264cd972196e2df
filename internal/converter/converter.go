// Package converter calls the external PDF-to-markdown conversion
// service. The service is a collaborator, not part of this pipeline:
// conversion quality is its problem, transport and retries are ours.
package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/avast/retry-go/v4"

	"github.com/ninalin0217/docsplit/config"
	"github.com/ninalin0217/docsplit/pkg/logger"
)

// Converter turns one part PDF into markdown text.
type Converter interface {
	Convert(ctx context.Context, filename string, pdf io.Reader) (string, error)
}

// Func adapts a function to the Converter interface.
type Func func(ctx context.Context, filename string, pdf io.Reader) (string, error)

func (f Func) Convert(ctx context.Context, filename string, pdf io.Reader) (string, error) {
	return f(ctx, filename, pdf)
}

// HTTPConverter posts the PDF as multipart form data and expects a JSON
// body with the markdown.
type HTTPConverter struct {
	endpoint    string
	maxAttempts uint
	client      *http.Client
	logger      logger.Logger
}

type convertResponse struct {
	Markdown string `json:"markdown"`
	Error    string `json:"error,omitempty"`
}

func NewHTTPConverter(cfg *config.ConverterConfig, log logger.Logger) *HTTPConverter {
	return &HTTPConverter{
		endpoint:    cfg.Endpoint,
		maxAttempts: cfg.MaxAttempts,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      log.Named("converter"),
	}
}

// Convert uploads the PDF and returns the converted markdown. Transport
// failures and 5xx responses are retried; a 4xx is permanent.
func (c *HTTPConverter) Convert(ctx context.Context, filename string, pdf io.Reader) (string, error) {
	// The request body is consumed per attempt, so buffer it once.
	data, err := io.ReadAll(pdf)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	var markdown string
	err = retry.Do(
		func() error {
			markdown, err = c.post(ctx, filename, data)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.maxAttempts),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("Conversion attempt failed",
				logger.String("filename", filename),
				logger.Int("attempt", int(n)+1),
				logger.Error(err),
			)
		}),
	)
	if err != nil {
		return "", err
	}
	return markdown, nil
}

func (c *HTTPConverter) post(ctx context.Context, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("failed to build form: %w", err))
	}
	if _, err := part.Write(data); err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("failed to write form: %w", err))
	}
	if err := writer.Close(); err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("failed to close form: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("conversion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read conversion response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("conversion service error: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return "", retry.Unrecoverable(fmt.Errorf("conversion rejected: %s", resp.Status))
	}

	var parsed convertResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse conversion response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("conversion failed: %s", parsed.Error)
	}
	return parsed.Markdown, nil
}
