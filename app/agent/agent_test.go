package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scolaire/store"
	"scolaire/types"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

type fakeSearcher struct {
	chunks []types.StoredChunk
	filter store.Filter
	limit  int
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, filter store.Filter, limit int) ([]types.StoredChunk, error) {
	f.filter, f.limit = filter, limit
	return f.chunks, nil
}

type fakeLLM struct {
	mu      sync.Mutex
	system  []string
	prompts []string
	answer  func(prompt string) (string, error)
}

func (f *fakeLLM) Generate(_ context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	f.system = append(f.system, system)
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.answer == nil {
		return " Réponse. ", nil
	}
	return f.answer(prompt)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stored(titre string, matiere types.Subject, text string, similarity float64) types.StoredChunk {
	return types.StoredChunk{
		Collection: types.CollectionCours,
		Record: types.ChunkRecord{
			Text: text,
			Metadata: types.Metadata{
				Source:  types.SourceVikidia,
				Matiere: matiere,
				Niveau:  types.LevelCollege,
				Titre:   titre,
				URL:     "https://fr.vikidia.org/wiki/" + titre,
			},
		},
		Distance: similarity,
	}
}

func TestAnswer_RefusesWithoutRelevantChunks(t *testing.T) {
	searcher := &fakeSearcher{chunks: []types.StoredChunk{stored("Cercle", types.Mathematiques, "x", 0.29)}}
	llm := &fakeLLM{}
	s := NewService(searcher, &fakeEmbedder{}, llm, DefaultConfig(), WithLogger(discard()), WithTokenCounter(ApproxTokens))

	resp, err := s.Answer(context.Background(), "Qui a gagné ?", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, RefusalMessage, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.NotNil(t, resp.Sources)
	assert.Zero(t, resp.NbSources)
	assert.Equal(t, types.LevelCollege, resp.Niveau)
	assert.Empty(t, llm.prompts, "model must not be called")
}

func TestAnswer_BuildsContextFromRelevantChunks(t *testing.T) {
	searcher := &fakeSearcher{chunks: []types.StoredChunk{
		stored("Cercle", types.Mathematiques, "[Cercle]\nUn cercle est rond.", 0.82),
		stored("Disque", types.Mathematiques, "[Disque]\nUn disque est plein.", 0.5),
		stored("Roue", types.Technologie, "[Roue]\nHors sujet.", 0.1),
	}}
	llm := &fakeLLM{}
	s := NewService(searcher, &fakeEmbedder{}, llm, DefaultConfig(), WithLogger(discard()), WithTokenCounter(ApproxTokens))

	collections := []string{types.CollectionCours}
	resp, err := s.Answer(context.Background(), "Qu'est-ce qu'un cercle ?", types.Mathematiques, types.Level6eme, collections)
	require.NoError(t, err)

	assert.Equal(t, store.Filter{Matiere: types.Mathematiques, Niveau: types.Level6eme, Collections: collections}, searcher.filter)
	assert.Equal(t, DefaultTopK, searcher.limit)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0],
		"[Source 1] Cercle (mathematiques)\n[Cercle]\nUn cercle est rond.\n\n---\n[Source 2] Disque (mathematiques)\n[Disque]\nUn disque est plein.\n")
	assert.NotContains(t, llm.prompts[0], "Hors sujet")
	assert.Contains(t, llm.prompts[0], "Question de l'élève: Qu'est-ce qu'un cercle ?")
	assert.Contains(t, llm.system[0], "6ème")
	assert.Contains(t, llm.system[0], "RÈGLES STRICTES")

	assert.Equal(t, "Réponse.", resp.Answer)
	assert.Equal(t, 2, resp.NbSources)
	assert.Equal(t, types.SourceRef{
		Titre:      "Cercle",
		URL:        "https://fr.vikidia.org/wiki/Cercle",
		Matiere:    types.Mathematiques,
		Source:     types.SourceVikidia,
		Similarity: 0.82,
	}, resp.Sources[0])
}

func TestAnswer_TokenBudget(t *testing.T) {
	searcher := &fakeSearcher{chunks: []types.StoredChunk{
		stored("A", types.SVT, "premier", 0.9),
		stored("B", types.SVT, "second", 0.8),
	}}
	llm := &fakeLLM{}
	cfg := DefaultConfig()
	cfg.MaxContextTokens = 150
	s := NewService(searcher, &fakeEmbedder{}, llm, cfg,
		WithLogger(discard()),
		WithTokenCounter(func(string) int { return 100 }),
	)

	resp, err := s.Answer(context.Background(), "q", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.NbSources)
	assert.NotContains(t, llm.prompts[0], "second")
}

func TestAnswer_FirstBlockAlwaysKept(t *testing.T) {
	searcher := &fakeSearcher{chunks: []types.StoredChunk{stored("A", types.SVT, "énorme", 0.9)}}
	cfg := DefaultConfig()
	cfg.MaxContextTokens = 10
	s := NewService(searcher, &fakeEmbedder{}, &fakeLLM{}, cfg,
		WithLogger(discard()),
		WithTokenCounter(func(string) int { return 1000 }),
	)

	resp, err := s.Answer(context.Background(), "q", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.NbSources)
}

func TestAnswer_Errors(t *testing.T) {
	boom := errors.New("ollama down")
	s := NewService(&fakeSearcher{}, &fakeEmbedder{err: boom}, &fakeLLM{}, DefaultConfig(), WithLogger(discard()), WithTokenCounter(ApproxTokens))
	_, err := s.Answer(context.Background(), "q", "", "", nil)
	assert.ErrorIs(t, err, boom)

	searcher := &fakeSearcher{chunks: []types.StoredChunk{stored("A", types.SVT, "x", 0.9)}}
	llm := &fakeLLM{answer: func(string) (string, error) { return "", boom }}
	s = NewService(searcher, &fakeEmbedder{}, llm, DefaultConfig(), WithLogger(discard()), WithTokenCounter(ApproxTokens))
	_, err = s.Answer(context.Background(), "q", "", "", nil)
	assert.ErrorIs(t, err, boom)
}

func TestSystemPrompt_UnknownLevel(t *testing.T) {
	assert.Equal(t, SystemPrompt(types.LevelCollege), SystemPrompt("terminale"))
	assert.True(t, strings.HasPrefix(SystemPrompt(types.Level3eme), "Tu es un assistant pour un élève de 3ème"))
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, ApproxTokens(""))
	assert.Equal(t, 1, ApproxTokens("été"))
	assert.Equal(t, 2, ApproxTokens("abcde"))
}
