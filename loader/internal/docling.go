package internal

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
	"os"
	"path/filepath"
	"strings"
	"time"

	"scolaire/types"
)

var ErrEmptyConversion = errors.New("converter returned no text")

// Converter turns a PDF file into markdown.
type Converter interface {
	Convert(ctx context.Context, path string) (string, error)
}

// DoclingClient calls a docling-serve instance.
type DoclingClient struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

func NewDoclingClient(url string, timeout time.Duration, logger *slog.Logger) *DoclingClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &DoclingClient{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (d *DoclingClient) Convert(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := d.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call docling: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("docling API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var out types.DoclingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode docling response: %w", err)
	}
	md := out.Document.MdContent
	if strings.TrimSpace(md) == "" {
		return "", ErrEmptyConversion
	}

	d.logger.Debug("[DOCLING] converted", "file", filepath.Base(path), "chars", len(md), "took", time.Since(start))
	return md, nil
}
