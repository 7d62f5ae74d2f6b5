// Package sqlite implements store.ChunkStore on an embedded SQLite database.
// Embeddings are stored as little-endian float32 blobs and ranked in Go,
// which suits single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	"github.com/dgallion1/manualbot/internal/store"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

var _ store.ChunkStore = (*Store)(nil)

// Store is a database/sql-backed chunk store.
type Store struct {
	db       *sql.DB
	embedder llm.Embedder
	log      *slog.Logger
}

// Open opens (creating if needed) the database at path. Foreign keys are
// enabled through the DSN so every pooled connection enforces the cascade.
func Open(path string, maxConns int, embedder llm.Embedder, log *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, domain.Wrap(domain.ErrStore, "create data directory", err)
		}
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStore, "open database", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, domain.Wrap(domain.ErrStore, "ping", err)
	}
	return New(db, embedder, log), nil
}

// New wraps an open database. A nil db or embedder yields a store whose
// operations fail with domain.ErrNotInitialized.
func New(db *sql.DB, embedder llm.Embedder, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:       db,
		embedder: embedder,
		log:      log.With("component", "store", "driver", "sqlite"),
	}
}

func (s *Store) ready(op string) error {
	if s == nil || s.db == nil || s.embedder == nil {
		return fmt.Errorf("%s: %w", op, domain.ErrNotInitialized)
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS parent_chunks (
		id TEXT PRIMARY KEY,
		document_name TEXT NOT NULL,
		content TEXT NOT NULL,
		page_number INTEGER,
		section_title TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_parent_chunks_document_name ON parent_chunks (document_name)`,
	`CREATE TABLE IF NOT EXISTS child_chunks (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL REFERENCES parent_chunks (id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_child_chunks_parent_id ON child_chunks (parent_id)`,
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.ready("ensure schema"); err != nil {
		return err
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return domain.Wrap(domain.ErrStore, "ensure schema", err)
		}
	}
	return nil
}

func (s *Store) PutParent(ctx context.Context, parent domain.ParentChunk) error {
	if err := s.ready("put parent"); err != nil {
		return err
	}
	meta, err := store.MarshalMetadata(parent.Metadata)
	if err != nil {
		return domain.Wrap(domain.ErrStore, "put parent", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parent_chunks (id, document_name, content, page_number, section_title, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET content = excluded.content, metadata = excluded.metadata`,
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.ErrStore, "put children", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO child_chunks (id, parent_id, content, embedding, metadata)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return domain.Wrap(domain.ErrStore, "put children", err)
	}
	defer stmt.Close()

	for i, c := range children {
		meta, err := store.MarshalMetadata(c.Metadata)
		if err != nil {
			return domain.Wrap(domain.ErrStore, "put children", err)
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), parentID.String(), c.Content,
			store.Float32ToBytes(vecs[i]), meta); err != nil {
			return domain.Wrap(domain.ErrStore, "put children", err)
		}
	}
	return domain.Wrap(domain.ErrStore, "put children", tx.Commit())
}

// Search scores every child in Go and keeps the best child per parent.
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

	rows, err := s.db.QueryContext(ctx, `SELECT parent_id, embedding FROM child_chunks`)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStore, "search", err)
	}
	best := map[string]float64{}
	for rows.Next() {
		var (
			parentID string
			blob     []byte
		)
		if err := rows.Scan(&parentID, &blob); err != nil {
			rows.Close()
			return nil, domain.Wrap(domain.ErrStore, "search scan", err)
		}
		sim := store.CosineSimilarity(query, store.BytesToFloat32(blob))
		if cur, ok := best[parentID]; !ok || sim > cur {
			best[parentID] = sim
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrStore, "search", err)
	}

	type scored struct {
		id  string
		sim float64
	}
	ranked := make([]scored, 0, len(best))
	for id, sim := range best {
		ranked = append(ranked, scored{id, sim})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	results := make([]domain.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		p, err := s.getParent(ctx, r.id)
		if err != nil {
			return nil, err
		}
		results = append(results, domain.SearchResult{Parent: p, Similarity: r.sim})
	}
	return results, nil
}

func (s *Store) getParent(ctx context.Context, id string) (domain.ParentChunk, error) {
	var (
		p       domain.ParentChunk
		rawID   string
		page    sql.NullInt64
		section sql.NullString
		meta    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_name, content, page_number, section_title, metadata
		FROM parent_chunks WHERE id = ?`, id).
		Scan(&rawID, &p.DocumentName, &p.Content, &page, &section, &meta)
	if err != nil {
		return p, domain.Wrap(domain.ErrStore, "get parent", err)
	}
	if p.ID, err = uuid.Parse(rawID); err != nil {
		return p, domain.Wrap(domain.ErrStore, "get parent", err)
	}
	if page.Valid {
		n := int(page.Int64)
		p.PageNumber = &n
	}
	if section.Valid {
		p.SectionTitle = &section.String
	}
	if p.Metadata, err = store.UnmarshalMetadata(meta); err != nil {
		return p, domain.Wrap(domain.ErrStore, "get parent", err)
	}
	return p, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentName string) error {
	if err := s.ready("delete document"); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM parent_chunks WHERE document_name = ?`, documentName)
	if err != nil {
		return domain.Wrap(domain.ErrStore, "delete document", err)
	}
	n, _ := res.RowsAffected()
	s.log.Info("deleted document", "document", documentName, "parents", n)
	return nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]store.DocumentSummary, error) {
	if err := s.ready("list documents"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.document_name, COUNT(DISTINCT p.id), COUNT(c.id)
		FROM parent_chunks p
		LEFT JOIN child_chunks c ON c.parent_id = p.id
		GROUP BY p.document_name
		ORDER BY p.document_name`)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStore, "list documents", err)
	}
	defer rows.Close()

	docs := []store.DocumentSummary{}
	for rows.Next() {
		var d store.DocumentSummary
		if err := rows.Scan(&d.Name, &d.ParentCount, &d.ChildCount); err != nil {
			return nil, domain.Wrap(domain.ErrStore, "list documents", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrStore, "list documents", err)
	}
	return docs, nil
}

// Close closes the database. Safe to call on an uninitialized store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
