package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedder_Normalizes(t *testing.T) {
	var got OllamaEmbeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"embedding":[3,4]}`))
	}))
	defer srv.Close()

	vec, err := NewOllamaEmbedder(srv.URL, "nomic-embed-text").Embed(context.Background(), "bonjour")
	require.NoError(t, err)
	assert.Equal(t, OllamaEmbeddingRequest{Model: "nomic-embed-text", Prompt: "bonjour"}, got)
	require.Len(t, vec, 2)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestOllamaEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"status", http.StatusInternalServerError, "model not found", nil},
		{"empty", http.StatusOK, `{"embedding":[]}`, ErrEmptyEmbedding},
		{"bad json", http.StatusOK, `{"embedding":`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOllamaEmbedder(srv.URL, "m").Embed(context.Background(), "x")
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestNormalize64_Zero(t *testing.T) {
	assert.Equal(t, []float64{0, 0}, normalize64([]float64{0, 0}))
	v := normalize64([]float64{1, 1, 1, 1})
	assert.InDelta(t, 1.0, math.Sqrt(v[0]*v[0]+v[1]*v[1]+v[2]*v[2]+v[3]*v[3]), 1e-9)
}

func testLLM(url string) *OllamaLLM {
	return NewOllamaLLM(url, "llama3.1", 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOllamaLLM_Stream(t *testing.T) {
	var got GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprintln(w, `{"response":"Le théorème ","done":false}`)
		fmt.Fprintln(w, `{"response":"de Pythagore","done":false}`)
		fmt.Fprintln(w, `{"response":".","done":true}`)
		fmt.Fprintln(w, `{"response":" ignoré","done":false}`)
	}))
	defer srv.Close()

	out, err := testLLM(srv.URL).WithTemperature(0.7).Generate(context.Background(), "sys", "question")
	require.NoError(t, err)
	assert.Equal(t, "Le théorème de Pythagore.", out)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, "question", got.Prompt)
	require.NotNil(t, got.Options)
	assert.Equal(t, 0.7, got.Options.Temperature)
}

func TestOllamaLLM_SingleObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotContains(t, req, "options")
		w.Write([]byte(`{"response":"Réponse complète","done":true}`))
	}))
	defer srv.Close()

	out, err := testLLM(srv.URL).Generate(context.Background(), "", "q")
	require.NoError(t, err)
	assert.Equal(t, "Réponse complète", out)
}

func TestOllamaLLM_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testLLM(srv.URL).Generate(context.Background(), "", "q")
	assert.ErrorContains(t, err, "status 503")
}

type scriptedLLM struct {
	answers []string
	errs    []error
	prompts []string
}

func (s *scriptedLLM) Generate(_ context.Context, _, prompt string) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.answers) {
		return s.answers[i], err
	}
	return "", err
}

func noBackoff(t *testing.T) {
	t.Helper()
	old := retryBackoff
	retryBackoff = 0
	t.Cleanup(func() { retryBackoff = old })
}

func TestGenerateJSON_FirstTry(t *testing.T) {
	noBackoff(t)
	llm := &scriptedLLM{answers: []string{"```json\n{\"question\": \"Q?\", \"correct_answer\": 2}\n```"}}

	var out struct {
		Question      string `json:"question"`
		CorrectAnswer int    `json:"correct_answer"`
	}
	require.NoError(t, GenerateJSON(context.Background(), llm, "", "prompt", 3, &out))
	assert.Equal(t, "Q?", out.Question)
	assert.Equal(t, 2, out.CorrectAnswer)
	assert.Len(t, llm.prompts, 1)
}

func TestGenerateJSON_Repairs(t *testing.T) {
	noBackoff(t)
	llm := &scriptedLLM{answers: []string{"{question: oops}", `{"question":"ok"}`}}

	var out map[string]string
	require.NoError(t, GenerateJSON(context.Background(), llm, "", "prompt", 3, &out))
	assert.Equal(t, "ok", out["question"])
	require.Len(t, llm.prompts, 2)
	assert.Equal(t, "prompt", llm.prompts[0])
	assert.Contains(t, llm.prompts[1], "{question: oops}")
}

func TestGenerateJSON_GivesUp(t *testing.T) {
	noBackoff(t)
	boom := errors.New("boom")
	llm := &scriptedLLM{errs: []error{boom, boom}}

	var out map[string]any
	err := GenerateJSON(context.Background(), llm, "", "prompt", 2, &out)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"prompt", "prompt"}, llm.prompts)

	llm = &scriptedLLM{answers: []string{"pas de json", "toujours rien"}}
	err = GenerateJSON(context.Background(), llm, "", "prompt", 2, &out)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestGenerateJSON_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out map[string]any
	assert.ErrorIs(t, GenerateJSON(ctx, &scriptedLLM{}, "", "p", 3, &out), context.Canceled)
}

func TestExtractJSON(t *testing.T) {
	s, err := extractJSON(`Voici: {"a": {"b": 1}} merci`)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}}`, s)

	_, err = extractJSON("} rien {")
	assert.ErrorIs(t, err, ErrNoJSON)
}
