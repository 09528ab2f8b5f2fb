package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"scolaire/types"
)

// Dimensions of the embedding column.
const Dimensions = 768

var (
	ErrNotFound    = errors.New("not found")
	ErrEmptyVector = errors.New("empty query vector")
)

// Filter narrows a similarity search. Zero values match everything.
type Filter struct {
	Matiere     types.Subject
	Niveau      types.Level
	Collections []string
}

type DBStorer interface {
	SaveDocument(context.Context, types.Document) error
	GetDocumentByID(context.Context, uuid.UUID) (*types.Document, error)
	DeleteDocumentByPath(context.Context, string) (int64, error)
	SaveChunk(context.Context, types.StoredChunk) error
	DeleteChunksByDocID(context.Context, uuid.UUID) error
	DeleteBySource(context.Context, string, types.Source) (int64, error)
	CountChunks(context.Context, string) (int64, error)
	Search(context.Context, []float32, Filter, int) ([]types.StoredChunk, error)
	GetLessonChunks(context.Context, types.Subject, string) ([]types.StoredChunk, error)
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ DBStorer = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, connStr string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger,
	}, nil
}

func (p *PostgresStore) GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, title, source, source_path, pages, created_at, updated_at FROM documents WHERE id = $1`, docID)

	doc := &types.Document{}
	if err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Source,
		&doc.SourcePath,
		&doc.Pages,
		&doc.CreatedAt,
		&doc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (p *PostgresStore) SaveDocument(ctx context.Context, doc types.Document) error {
	query := `INSERT INTO documents (id, title, source, source_path, pages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			source_path = EXCLUDED.source_path,
			pages = EXCLUDED.pages,
			updated_at = EXCLUDED.updated_at
			`
	_, err := p.pool.Exec(
		ctx,
		query,
		doc.ID,
		doc.Title,
		doc.Source,
		doc.SourcePath,
		doc.Pages,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// DeleteDocumentByPath removes the documents loaded from path together with
// their chunks.
func (p *PostgresStore) DeleteDocumentByPath(ctx context.Context, path string) (int64, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM documents WHERE source_path = $1", path)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE doc_id = $1", docID)
	return err
}

// DeleteBySource removes every chunk of a source from a collection.
func (p *PostgresStore) DeleteBySource(ctx context.Context, collection string, source types.Source) (int64, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE collection = $1 AND source = $2", collection, source)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountChunks counts the chunks of a collection, or of all collections when
// collection is empty.
func (p *PostgresStore) CountChunks(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx,
		"SELECT count(*) FROM chunks WHERE $1 = '' OR collection = $1", collection).Scan(&n)
	return n, err
}

func (p *PostgresStore) SaveChunk(ctx context.Context, c types.StoredChunk) error {
	if len(c.Embedding) != Dimensions {
		return fmt.Errorf("embedding has %d dimensions, want %d", len(c.Embedding), Dimensions)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	var docID *uuid.UUID
	if c.DocID != uuid.Nil {
		docID = &c.DocID
	}

	m := c.Record.Metadata
	query := `
    INSERT INTO chunks (id, doc_id, collection, source, matiere, niveau, titre, url, categorie,
                        chunk_index, niveau_wikiversite, content, embedding)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `
	_, err := p.pool.Exec(ctx, query,
		c.ID, docID, c.Collection, m.Source, m.Matiere, m.Niveau, m.Titre, m.URL, m.Categorie,
		m.ChunkIndex, m.NiveauWikiversite, c.Record.Text, pgvector.NewVector(c.Embedding),
	)
	return err
}

const chunkColumns = `id, collection, source, matiere, niveau, titre, url, categorie,
		chunk_index, niveau_wikiversite, content`

// Search returns the chunks closest to queryVec. Distance holds the cosine
// similarity, highest first.
func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, f Filter, limit int) ([]types.StoredChunk, error) {
	if len(queryVec) == 0 {
		return nil, ErrEmptyVector
	}

	query, args := searchQuery(pgvector.NewVector(queryVec), f, limit)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var chunks []types.StoredChunk
	for rows.Next() {
		var c types.StoredChunk
		if err := scanChunk(rows, &c, &c.Distance); err != nil {
			return nil, err
		}
		p.logger.Debug("[SEARCH] chunk found", "titre", c.Record.Metadata.Titre, "index", c.Record.Metadata.ChunkIndex, "similarity", c.Distance)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// searchQuery builds the similarity query. A level filter also matches
// chunks tagged for the whole collège.
func searchQuery(vec pgvector.Vector, f Filter, limit int) (string, []any) {
	args := []any{vec}
	where := []string{"embedding IS NOT NULL"}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Matiere != "" {
		where = append(where, "matiere = "+arg(f.Matiere))
	}
	if f.Niveau != "" && f.Niveau != types.LevelCollege {
		where = append(where, fmt.Sprintf("niveau IN (%s, %s)", arg(f.Niveau), arg(types.LevelCollege)))
	}
	if len(f.Collections) > 0 {
		where = append(where, "collection = ANY("+arg(f.Collections)+")")
	}

	query := fmt.Sprintf(`
		SELECT %s, 1-(embedding <=> $1) AS similarity
		FROM chunks
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT %s`, chunkColumns, strings.Join(where, " AND "), arg(limit))
	return query, args
}

// GetLessonChunks returns the chunks of one lesson in reading order.
func (p *PostgresStore) GetLessonChunks(ctx context.Context, matiere types.Subject, titre string) ([]types.StoredChunk, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE matiere = $1 AND titre = $2 ORDER BY chunk_index`,
		matiere, titre)
	if err != nil {
		return nil, fmt.Errorf("lesson chunks: %w", err)
	}
	defer rows.Close()

	var chunks []types.StoredChunk
	for rows.Next() {
		var c types.StoredChunk
		if err := scanChunk(rows, &c); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNotFound
	}
	return chunks, nil
}

func scanChunk(rows pgx.Rows, c *types.StoredChunk, extra ...any) error {
	m := &c.Record.Metadata
	dest := append([]any{
		&c.ID, &c.Collection, &m.Source, &m.Matiere, &m.Niveau, &m.Titre, &m.URL, &m.Categorie,
		&m.ChunkIndex, &m.NiveauWikiversite, &c.Record.Text,
	}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("failed to scan chunk: %w", err)
	}
	return nil
}

func (p *PostgresStore) createRagTables(ctx context.Context) error {
	query := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		source TEXT,
		source_path TEXT,
		pages INTEGER DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_source_path ON documents(source_path);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		doc_id UUID REFERENCES documents(id) ON DELETE CASCADE,
		collection TEXT NOT NULL,
		source TEXT NOT NULL,
		matiere TEXT NOT NULL,
		niveau TEXT NOT NULL,
		titre TEXT NOT NULL,
		url TEXT,
		categorie TEXT,
		chunk_index INT NOT NULL,
		niveau_wikiversite INT DEFAULT 0,
		content TEXT NOT NULL,
		embedding vector(` + strconv.Itoa(Dimensions) + `)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_collection_source ON chunks(collection, source);
	CREATE INDEX IF NOT EXISTS idx_chunks_lesson ON chunks(matiere, titre, chunk_index);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createRagTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("Postgres connection pool is closed")
	}
	return nil
}
