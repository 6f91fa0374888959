// Package ocr talks to the text recognition backend used for receipt photos
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/expense-tracker/internal/config"
)

// ErrDisabled is returned when no recognition backend is configured
var ErrDisabled = errors.New("text recognition is not configured")

// TextRecognizer extracts the printed text of an image
type TextRecognizer interface {
	RecognizeText(ctx context.Context, image []byte) (string, error)
}

// HTTPRecognizer posts images to an OCR service that answers {"text": "..."}
type HTTPRecognizer struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

type recognizeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewHTTPRecognizer returns nil when cfg has no URL
func NewHTTPRecognizer(logger *slog.Logger, cfg config.OCRConfig) *HTTPRecognizer {
	if cfg.URL == "" {
		return nil
	}
	return &HTTPRecognizer{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (r *HTTPRecognizer) RecognizeText(ctx context.Context, image []byte) (string, error) {
	if r == nil {
		return "", ErrDisabled
	}
	if len(image) == 0 {
		return "", errors.New("image cannot be empty")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "receipt")
	if err != nil {
		return "", fmt.Errorf("failed to build OCR request: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("failed to build OCR request: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to build OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &body)
	if err != nil {
		return "", fmt.Errorf("failed to build OCR request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("Failed to call OCR service", "error", err)
		return "", fmt.Errorf("failed to call OCR service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read OCR response: %w", err)
	}

	var out recognizeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		r.logger.Error("Failed to decode OCR response", "status", resp.StatusCode, "error", err)
		return "", fmt.Errorf("failed to decode OCR response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		r.logger.Error("OCR service rejected image", "status", resp.StatusCode, "error", out.Error)
		return "", fmt.Errorf("OCR service returned %d: %s", resp.StatusCode, out.Error)
	}

	r.logger.Debug("Receipt text recognized", "text_len", len(out.Text))
	return out.Text, nil
}
