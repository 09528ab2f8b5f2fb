// Package agent answers student questions from retrieved course chunks and
// builds quizzes from lessons.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scolaire/model"
	"scolaire/store"
	"scolaire/types"
)

const (
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.3
	DefaultMaxContextTokens    = 3000
)

const contextSeparator = "\n---\n"

type Searcher interface {
	Search(ctx context.Context, vec []float32, f store.Filter, limit int) ([]types.StoredChunk, error)
}

type Config struct {
	TopK                int
	SimilarityThreshold float64
	MaxContextTokens    int
}

func DefaultConfig() Config {
	return Config{
		TopK:                DefaultTopK,
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxContextTokens:    DefaultMaxContextTokens,
	}
}

type Service struct {
	searcher Searcher
	embedder model.Embedder
	llm      model.LLM
	cfg      Config
	count    TokenCounter
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithTokenCounter(c TokenCounter) Option {
	return func(s *Service) { s.count = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(searcher Searcher, embedder model.Embedder, llm model.LLM, cfg Config, opts ...Option) *Service {
	s := &Service{
		searcher: searcher,
		embedder: embedder,
		llm:      llm,
		cfg:      cfg,
		count:    CountTokens,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer retrieves the chunks relevant to question and asks the model to
// answer from them only. Without relevant chunks the model is not called.
func (s *Service) Answer(ctx context.Context, question string, matiere types.Subject, niveau types.Level, collections []string) (*types.ChatResponse, error) {
	if niveau == "" {
		niveau = types.LevelCollege
	}
	s.logger.Info("[CHAT] question", "matiere", matiere, "niveau", niveau, "collections", collections)

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	found, err := s.searcher.Search(ctx, vec, store.Filter{
		Matiere:     matiere,
		Niveau:      niveau,
		Collections: collections,
	}, s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	relevant := s.filterChunks(found)
	resp := &types.ChatResponse{
		Sources:   []types.SourceRef{},
		Niveau:    niveau,
		Timestamp: s.now(),
	}
	if len(relevant) == 0 {
		s.logger.Info("[CHAT] no relevant chunk, refusing")
		resp.Answer = RefusalMessage
		return resp, nil
	}

	excerpts, used := s.buildContext(relevant)
	answer, err := s.llm.Generate(ctx, SystemPrompt(niveau), AnswerPrompt(question, excerpts))
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	resp.Answer = strings.TrimSpace(answer)
	resp.Sources = formatSources(used)
	resp.NbSources = len(used)
	return resp, nil
}

func (s *Service) filterChunks(chunks []types.StoredChunk) []types.StoredChunk {
	result := make([]types.StoredChunk, 0, len(chunks))
	for _, ch := range chunks {
		if ch.Distance >= s.cfg.SimilarityThreshold {
			result = append(result, ch)
		} else {
			s.logger.Debug("[FILTER] chunk dropped", "titre", ch.Record.Metadata.Titre, "similarity", ch.Distance, "threshold", s.cfg.SimilarityThreshold)
		}
	}
	return result
}

// buildContext joins "[Source i] titre (matiere)" blocks, most similar first,
// until the token budget is spent. The first block is always kept.
func (s *Service) buildContext(chunks []types.StoredChunk) (string, []types.StoredChunk) {
	var (
		blocks []string
		used   []types.StoredChunk
		total  int
	)
	for i, ch := range chunks {
		block := fmt.Sprintf("[Source %d] %s (%s)\n%s\n", i+1, ch.Record.Metadata.Titre, ch.Record.Metadata.Matiere, ch.Record.Text)
		n := s.count(block)
		if len(blocks) > 0 && s.cfg.MaxContextTokens > 0 && total+n > s.cfg.MaxContextTokens {
			s.logger.Info("[CONTEXT] token budget reached", "budget", s.cfg.MaxContextTokens, "chunks", len(blocks))
			break
		}
		blocks = append(blocks, block)
		used = append(used, ch)
		total += n
	}
	s.logger.Debug("[CONTEXT] built", "tokens", total, "chunks", len(used))
	return strings.Join(blocks, contextSeparator), used
}

func formatSources(chunks []types.StoredChunk) []types.SourceRef {
	sources := make([]types.SourceRef, len(chunks))
	for i, ch := range chunks {
		m := ch.Record.Metadata
		sources[i] = types.SourceRef{
			Titre:      m.Titre,
			URL:        m.URL,
			Matiere:    m.Matiere,
			Source:     m.Source,
			Similarity: ch.Distance,
		}
	}
	return sources
}
