// Package postgres implements store.ChunkStore on PostgreSQL with pgvector.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	"github.com/dgallion1/manualbot/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var _ store.ChunkStore = (*Store)(nil)

// Vector index kinds.
const (
	IndexHNSW    = "hnsw"
	IndexIVFFlat = "ivfflat"
)

// hnsw and ivfflat only index vectors up to this many dimensions.
const maxIndexedDimensions = 2000

// Config holds connection and schema settings.
type Config struct {
	DSN      string
	MaxConns int32
	Index    string
}

// Store is a pgxpool-backed chunk store. Vectors are sent as pgvector text
// literals with explicit ::vector casts, so the extension may be created by
// EnsureSchema after the pool is opened.
type Store struct {
	pool     *pgxpool.Pool
	embedder llm.Embedder
	index    string
	log      *slog.Logger
}

// Open connects a bounded pool and verifies connectivity.
func Open(ctx context.Context, cfg Config, embedder llm.Embedder, log *slog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStore, "parse dsn", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStore, "create pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.Wrap(domain.ErrStore, "ping", err)
	}
	return New(pool, embedder, cfg.Index, log), nil
}

// New wraps an existing pool. A nil pool or embedder yields a store whose
// operations fail with domain.ErrNotInitialized.
func New(pool *pgxpool.Pool, embedder llm.Embedder, index string, log *slog.Logger) *Store {
	if index == "" {
		index = IndexHNSW
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:     pool,
		embedder: embedder,
		index:    index,
		log:      log.With("component", "store", "driver", "postgres"),
	}
}

func (s *Store) ready(op string) error {
	if s == nil || s.pool == nil || s.embedder == nil {
		return fmt.Errorf("%s: %w", op, domain.ErrNotInitialized)
	}
	return nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.ready("ensure schema"); err != nil {
		return err
	}
	stmts, err := schemaStatements(s.embedder.Dimensions(), s.index)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return domain.Wrap(domain.ErrStore, "ensure schema", err)
		}
	}
	if s.embedder.Dimensions() > maxIndexedDimensions {
		s.log.Warn("embedding dimension too large for a vector index; searches will scan",
			"dimensions", s.embedder.Dimensions())
	}
	return nil
}

func schemaStatements(dim int, index string) ([]string, error) {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS parent_chunks (
			id UUID PRIMARY KEY,
			document_name TEXT NOT NULL,
			content TEXT NOT NULL,
			page_number INTEGER,
			section_title TEXT,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_parent_chunks_document_name ON parent_chunks (document_name)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS child_chunks (
			id UUID PRIMARY KEY,
			parent_id UUID NOT NULL REFERENCES parent_chunks (id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_child_chunks_parent_id ON child_chunks (parent_id)`,
	}
	if dim > maxIndexedDimensions {
		return stmts, nil
	}
	switch index {
	case IndexHNSW:
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_child_chunks_embedding
			ON child_chunks USING hnsw (embedding vector_cosine_ops)`)
	case IndexIVFFlat:
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_child_chunks_embedding
			ON child_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`)
	default:
		return nil, domain.Validationf("unknown vector index %q", index)
	}
	return stmts, nil
}

func (s *Store) PutParent(ctx context.Context, parent domain.ParentChunk) error {
	if err := s.ready("put parent"); err != nil {
		return err
	}
	meta, err := store.MarshalMetadata(parent.Metadata)
	if err != nil {
		return domain.Wrap(domain.ErrStore, "put parent", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO parent_chunks (id, document_name, content, page_number, section_title, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, metadata = EXCLUDED.metadata`,
		parent.ID.String(), parent.DocumentName, parent.Content, parent.PageNumber, parent.SectionTitle, meta)
	return domain.Wrap(domain.ErrStore, "put parent", err)
}

func (s *Store) PutChildren(ctx context.Context, parentID uuid.UUID, children []store.ChildInput) error {
	if err := s.ready("put children"); err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	vecs, err := store.EmbedChildren(ctx, s.embedder, children)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, c := range children {
		meta, err := store.MarshalMetadata(c.Metadata)
		if err != nil {
			return domain.Wrap(domain.ErrStore, "put children", err)
		}
		batch.Queue(`
			INSERT INTO child_chunks (id, parent_id, content, embedding, metadata)
			VALUES ($1, $2, $3, $4::vector, $5::jsonb)`,
			uuid.NewString(), parentID.String(), c.Content, pgvector.NewVector(vecs[i]), meta)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	return domain.Wrap(domain.ErrStore, "put children", err)
}

const searchSQL = `
	SELECT id, document_name, content, page_number, section_title, metadata, similarity
	FROM (
		SELECT DISTINCT ON (p.id)
			p.id::text AS id,
			p.document_name,
			p.content,
			p.page_number,
			p.section_title,
			COALESCE(p.metadata, '{}'::jsonb)::text AS metadata,
			1 - (c.embedding <=> $1::vector) AS similarity
		FROM child_chunks c
		JOIN parent_chunks p ON p.id = c.parent_id
		ORDER BY p.id, c.embedding <=> $1::vector
	) best
	ORDER BY similarity DESC, id
	LIMIT $2`

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]domain.SearchResult, error) {
	if err := s.ready("search"); err != nil {
		return nil, err
	}
	if err := store.ValidateK(k); err != nil {
		return nil, err
	}
	if err := store.CheckQuery(query, s.embedder.Dimensions()); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, searchSQL, pgvector.NewVector(query), k)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStore, "search", err)
	}
	defer rows.Close()

	results := []domain.SearchResult{}
	for rows.Next() {
		var (
			id, meta string
			r        domain.SearchResult
		)
		if err := rows.Scan(&id, &r.Parent.DocumentName, &r.Parent.Content, &r.Parent.PageNumber,
			&r.Parent.SectionTitle, &meta, &r.Similarity); err != nil {
			return nil, domain.Wrap(domain.ErrStore, "search scan", err)
		}
		if r.Parent.ID, err = uuid.Parse(id); err != nil {
			return nil, domain.Wrap(domain.ErrStore, "search scan", err)
		}
		if r.Parent.Metadata, err = store.UnmarshalMetadata(meta); err != nil {
			return nil, domain.Wrap(domain.ErrStore, "search scan", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrStore, "search", err)
	}
	return results, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentName string) error {
	if err := s.ready("delete document"); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM parent_chunks WHERE document_name = $1`, documentName)
	if err != nil {
		return domain.Wrap(domain.ErrStore, "delete document", err)
	}
	s.log.Info("deleted document", "document", documentName, "parents", tag.RowsAffected())
	return nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]store.DocumentSummary, error) {
	if err := s.ready("list documents"); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT p.document_name, COUNT(DISTINCT p.id), COUNT(c.id)
		FROM parent_chunks p
		LEFT JOIN child_chunks c ON c.parent_id = p.id
		GROUP BY p.document_name
		ORDER BY p.document_name`)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStore, "list documents", err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.DocumentSummary, error) {
		var d store.DocumentSummary
		err := row.Scan(&d.Name, &d.ParentCount, &d.ChildCount)
		return d, err
	})
	if err != nil {
		return nil, domain.Wrap(domain.ErrStore, "list documents", err)
	}
	if docs == nil {
		docs = []store.DocumentSummary{}
	}
	return docs, nil
}

// Close releases the pool. Safe to call on an uninitialized store.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
