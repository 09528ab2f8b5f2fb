// Package pipeline turns raw pages into corpus records: clean, chunk, tag.
package pipeline

import (
	"log/slog"
	"unicode/utf8"

	"scolaire/scraper/chunker"
	"scolaire/scraper/cleaner"
	"scolaire/scraper/metadata"
	"scolaire/types"
)

// MinCleanedChars is the shortest cleaned text worth chunking.
const MinCleanedChars = 50

type Pipeline struct {
	chunker *chunker.Chunker
	logger  *slog.Logger
}

func New(ch *chunker.Chunker, logger *slog.Logger) *Pipeline {
	if ch == nil {
		ch = chunker.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker: ch,
		logger:  logger,
	}
}

// Process converts pages to records, preserving page order and chunk order
// within a page. Pages whose cleaned text is too short are dropped.
func (p *Pipeline) Process(pages []types.RawPage) []types.ChunkRecord {
	var (
		records []types.ChunkRecord
		dropped int
	)
	for _, page := range pages {
		recs := p.ProcessPage(page)
		if recs == nil {
			dropped++
			continue
		}
		records = append(records, recs...)
	}
	p.logger.Info("[PIPELINE] processed", "pages", len(pages), "dropped", dropped, "records", len(records))
	return records
}

// ProcessPage returns the records of one page, or nil if the page was dropped.
func (p *Pipeline) ProcessPage(page types.RawPage) []types.ChunkRecord {
	text := cleaner.Clean(page.Text)
	if utf8.RuneCountInString(text) < MinCleanedChars {
		p.logger.Debug("[PIPELINE] cleaned text too short", "title", page.Title, "chars", utf8.RuneCountInString(text))
		return nil
	}

	subject := page.Subject
	if subject == "" {
		subject = metadata.SubjectFor(page.SourceCategory)
	}

	chunks := p.chunker.Split(text, page.Title)
	records := make([]types.ChunkRecord, 0, len(chunks))
	for _, ch := range chunks {
		meta := metadata.BuildMetadata(page.Source, subject, page.Title, page.URL, page.SourceCategory, page.Level)
		meta.ChunkIndex = ch.Index
		meta.NiveauWikiversite = page.WikiversityLevel
		records = append(records, types.ChunkRecord{Text: ch.Text, Metadata: meta})
	}
	return records
}

// GroupBySubject groups records by subject, keeping their relative order.
func GroupBySubject(records []types.ChunkRecord) map[types.Subject][]types.ChunkRecord {
	grouped := make(map[types.Subject][]types.ChunkRecord)
	for _, r := range records {
		grouped[r.Metadata.Matiere] = append(grouped[r.Metadata.Matiere], r)
	}
	return grouped
}
