package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// LLM generates a completion for a system prompt and a user prompt.
type LLM interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type GenerateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system,omitempty"`
	Prompt  string          `json:"prompt"`
	Options *GenerateOption `json:"options,omitempty"`
}

type GenerateOption struct {
	Temperature float64 `json:"temperature"`
}

type GenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaLLM talks to the Ollama /api/generate endpoint. Both the streamed
// (one JSON object per line) and the single-object responses are accepted.
type OllamaLLM struct {
	url     string
	model   string
	options *GenerateOption
	http    *http.Client
	logger  *slog.Logger
}

func NewOllamaLLM(url, model string, timeout time.Duration, logger *slog.Logger) *OllamaLLM {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaLLM{
		url:    url,
		model:  model,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// WithTemperature returns a copy of the client sampling at t.
func (l *OllamaLLM) WithTemperature(t float64) *OllamaLLM {
	cp := *l
	cp.options = &GenerateOption{Temperature: t}
	return &cp
}

func (l *OllamaLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	defer func() {
		l.logger.Debug("[LLM] answer took", "duration", time.Since(start))
	}()

	reqBody, err := json.Marshal(GenerateRequest{
		Model:   l.model,
		System:  system,
		Prompt:  prompt,
		Options: l.options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	decoder := json.NewDecoder(resp.Body)
	var b strings.Builder
	for {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		b.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	return b.String(), nil
}
