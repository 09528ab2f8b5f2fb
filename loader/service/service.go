// Package service loads course chunks into the vector store: the scraped
// corpus in bulk, and personal PDFs as they are dropped in the watched folder.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scolaire/loader/internal"
	"scolaire/model"
	"scolaire/scraper/corpus"
	"scolaire/store"
	"scolaire/types"
)

const (
	ingestWorkers   = 4
	shutdownTimeout = 5 * time.Second
)

type DBStorer interface {
	GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error)
	SaveDocument(ctx context.Context, doc types.Document) error
	DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error
	SaveChunk(ctx context.Context, c types.StoredChunk) error
	DeleteBySource(ctx context.Context, collection string, source types.Source) (int64, error)
	CountChunks(ctx context.Context, collection string) (int64, error)
}

// Loader is the PDF side of the service.
type Loader interface {
	Load(ctx context.Context, filePath string) (*types.Document, error)
	MoveToArchive(filePath string, bad bool) (string, error)
}

type Service struct {
	logger   *slog.Logger
	store    DBStorer
	embedder model.Embedder
}

func New(storer DBStorer, embedder model.Embedder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:   logger,
		store:    storer,
		embedder: embedder,
	}
}

type IngestStats struct {
	Records  int
	Saved    int64
	Failed   int64
	Replaced int64
}

// Ingest embeds every record of the corpus in dir into the course
// collection. With replace, the chunks of every source present in the corpus
// are deleted first. Records that fail to embed or save are counted and
// skipped.
func (s *Service) Ingest(ctx context.Context, dir string, replace bool) (IngestStats, error) {
	var stats IngestStats

	grouped, err := corpus.NewStore(dir, s.logger).LoadAll()
	if err != nil {
		return stats, err
	}

	subjects := make([]types.Subject, 0, len(grouped))
	for subject := range grouped {
		subjects = append(subjects, subject)
	}
	slices.Sort(subjects)

	var records []types.ChunkRecord
	for _, subject := range subjects {
		s.logger.Info("[INGEST] subject loaded", "matiere", subject, "records", len(grouped[subject]))
		records = append(records, grouped[subject]...)
	}
	stats.Records = len(records)
	if len(records) == 0 {
		s.logger.Warn("[INGEST] no record found", "dir", dir)
		return stats, nil
	}

	if replace {
		for _, source := range sourcesOf(records) {
			n, err := s.store.DeleteBySource(ctx, types.CollectionCours, source)
			if err != nil {
				return stats, fmt.Errorf("failed to delete %s chunks: %w", source, err)
			}
			s.logger.Info("[INGEST] replaced source", "source", source, "deleted", n)
			stats.Replaced += n
		}
	}

	var saved, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestWorkers)
	for _, rec := range records {
		g.Go(func() error {
			if err := s.saveRecord(gctx, types.CollectionCours, uuid.Nil, rec); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				s.logger.Error("[INGEST] record skipped", "titre", rec.Metadata.Titre, "chunk", rec.Metadata.ChunkIndex, "error", err)
				return nil
			}
			if n := saved.Add(1); n%100 == 0 {
				s.logger.Info("[INGEST] progress", "saved", n, "total", len(records))
			}
			return nil
		})
	}
	err = g.Wait()
	stats.Saved, stats.Failed = saved.Load(), failed.Load()
	if err != nil {
		return stats, err
	}

	if total, err := s.store.CountChunks(ctx, types.CollectionCours); err == nil {
		s.logger.Info("[INGEST] done", "saved", stats.Saved, "failed", stats.Failed, "collection_total", total)
	}
	return stats, nil
}

func sourcesOf(records []types.ChunkRecord) []types.Source {
	var sources []types.Source
	for _, r := range records {
		if !slices.Contains(sources, r.Metadata.Source) {
			sources = append(sources, r.Metadata.Source)
		}
	}
	return sources
}

func (s *Service) saveRecord(ctx context.Context, collection string, docID uuid.UUID, rec types.ChunkRecord) error {
	vec, err := s.embedder.Embed(ctx, rec.Text)
	if err != nil {
		return fmt.Errorf("failed to embed chunk: %w", err)
	}
	return s.store.SaveChunk(ctx, types.StoredChunk{
		DocID:      docID,
		Collection: collection,
		Record:     rec,
		Embedding:  vec,
	})
}

// Watch runs the PDF pipeline until ctx is cancelled: the watcher hands
// stable files to the processor, which loads them, and the saver stores and
// archives the resulting documents.
func (s *Service) Watch(ctx context.Context, watcher *internal.Watcher, loader Loader) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fileChan := make(chan string, 10)
	docChan := make(chan *types.Document)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		watcher.Watch(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(docChan)
		s.ProcessFiles(ctx, loader, fileChan, docChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.DocumentSave(ctx, loader, docChan)
	}()

	<-ctx.Done()
	s.logger.Info("[LOADER] shutting down")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("[LOADER] all workers stopped")
	case <-time.After(shutdownTimeout):
		s.logger.Warn("[LOADER] timeout waiting for workers to stop")
	}
}

// ProcessFiles loads each file received on fileChan. Files that cannot be
// loaded go to the bad directory.
func (s *Service) ProcessFiles(ctx context.Context, loader Loader, fileChan <-chan string, docChan chan<- *types.Document) {
	for filePath := range fileChan {
		if ctx.Err() != nil {
			return
		}
		s.logger.Info("[LOADER] processing file", "file", filePath)

		doc, err := loader.Load(ctx, filePath)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("[LOADER] failed to load file", "file", filePath, "error", err)
			s.archive(loader, filePath, true)
			continue
		}

		select {
		case docChan <- doc:
		case <-ctx.Done():
			return
		}
	}
}

// DocumentSave stores the documents received on docChan in the personal
// collection and archives their files.
func (s *Service) DocumentSave(ctx context.Context, loader Loader, docChan <-chan *types.Document) {
	for doc := range docChan {
		if !s.ShouldUpdateFile(ctx, doc.ID, doc.UpdatedAt) {
			s.logger.Info("[LOADER] document unchanged", "file", doc.SourcePath)
			s.archive(loader, doc.SourcePath, false)
			continue
		}

		err := s.SaveDocument(ctx, doc)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error("[LOADER] failed to save document", "file", doc.SourcePath, "error", err)
		}
		s.archive(loader, doc.SourcePath, err != nil)
	}
}

// SaveDocument replaces the chunks of doc with freshly embedded ones. It
// fails when no chunk could be saved.
func (s *Service) SaveDocument(ctx context.Context, doc *types.Document) error {
	if err := s.store.SaveDocument(ctx, *doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	if err := s.store.DeleteChunksByDocID(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete previous chunks: %w", err)
	}

	saved := 0
	var errs []error
	for _, rec := range doc.Records {
		if err := s.saveRecord(ctx, types.CollectionPersonal, doc.ID, rec); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	if saved == 0 && len(doc.Records) > 0 {
		return errors.Join(errs...)
	}

	s.logger.Info("[LOADER] document saved",
		"title", doc.Title,
		"chunks", saved,
		"failed", len(errs),
	)
	return nil
}

// ShouldUpdateFile reports whether the file is new or changed since it was
// last stored.
func (s *Service) ShouldUpdateFile(ctx context.Context, docID uuid.UUID, modTime time.Time) bool {
	doc, err := s.store.GetDocumentByID(ctx, docID)
	if errors.Is(err, store.ErrNotFound) {
		return true
	}
	if err != nil {
		s.logger.Warn("[LOADER] failed to look up document", "id", docID, "error", err)
		return true
	}
	return modTime.After(doc.UpdatedAt)
}

func (s *Service) archive(loader Loader, filePath string, bad bool) {
	if _, err := loader.MoveToArchive(filePath, bad); err != nil {
		s.logger.Error("[LOADER] failed to archive file", "file", filePath, "error", err)
	}
}
