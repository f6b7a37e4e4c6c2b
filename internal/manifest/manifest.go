// Package manifest tracks which documents are indexed, their content
// fingerprints, and the chunks derived from them. It is the source of
// truth the synchronizer diffs against and the retriever enriches
// results from.
package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/glibalien/obsidian-tools-sub002/internal/errors"
)

// State keys for the key/value state table.
const (
	StateKeyWatermark    = "last_sync_at"
	StateKeyEmbedder     = "embedder"
	StateKeyModel        = "embeddings_model"
	StateKeyDimensions   = "embeddings_dimensions"
	StateKeySchemaOwner  = "schema_owner"
	currentSchemaVersion = 1
)

// ChunkRef describes one chunk derived from a document.
type ChunkRef struct {
	ChunkID     string
	Position    int
	Type        string
	HeadingPath string
	Content     string
}

// Entry is the manifest record for a single document.
type Entry struct {
	Path        string
	Fingerprint string
	IndexedAt   time.Time
	Chunks      []ChunkRef
}

// ChunkInfo is a chunk joined with its owning document path, as
// returned by lookups keyed on chunk ID.
type ChunkInfo struct {
	ChunkRef
	Path string
}

// Stats summarizes manifest contents.
type Stats struct {
	Documents int
	Chunks    int
}

// Store is a SQLite-backed manifest.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the manifest database at path.
// Pass ":memory:" for an in-memory manifest.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.StoreError("create manifest directory", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StoreError("open manifest database", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN params, so set pragmas explicitly
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.StoreError("set manifest pragma", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		indexed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunk_refs (
		chunk_id TEXT PRIMARY KEY,
		path TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		chunk_type TEXT NOT NULL,
		heading_path TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunk_refs_path ON chunk_refs(path);

	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return errors.StoreError("create manifest schema", err)
	}

	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO schema_version (version) VALUES (?)",
		currentSchemaVersion)
	if err != nil {
		return errors.StoreError("record schema version", err)
	}
	return nil
}

// Get returns the manifest entry for a document path, including its
// chunk refs, or nil if the document is not tracked.
func (s *Store) Get(ctx context.Context, path string) (*Entry, error) {
	entry := &Entry{Path: path}
	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint, indexed_at FROM files WHERE path = ?", path,
	).Scan(&entry.Fingerprint, &entry.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StoreError("read manifest entry", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, position, chunk_type, heading_path, content
		FROM chunk_refs
		WHERE path = ?
		ORDER BY position
	`, path)
	if err != nil {
		return nil, errors.StoreError("read chunk refs", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref ChunkRef
		if err := rows.Scan(&ref.ChunkID, &ref.Position, &ref.Type, &ref.HeadingPath, &ref.Content); err != nil {
			return nil, errors.StoreError("scan chunk ref", err)
		}
		entry.Chunks = append(entry.Chunks, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("iterate chunk refs", err)
	}

	return entry, nil
}

// Put records a document and its chunks in a single transaction,
// replacing any previous record for the same path.
func (s *Store) Put(ctx context.Context, entry *Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError("begin manifest transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (path, fingerprint, indexed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			indexed_at = excluded.indexed_at
	`, entry.Path, entry.Fingerprint, entry.IndexedAt)
	if err != nil {
		return errors.StoreError("upsert manifest file", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_refs WHERE path = ?", entry.Path); err != nil {
		return errors.StoreError("clear stale chunk refs", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_refs (chunk_id, path, position, chunk_type, heading_path, content)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.StoreError("prepare chunk ref insert", err)
	}
	defer stmt.Close()

	for _, ref := range entry.Chunks {
		if _, err := stmt.ExecContext(ctx, ref.ChunkID, entry.Path, ref.Position, ref.Type, ref.HeadingPath, ref.Content); err != nil {
			return errors.StoreError("insert chunk ref", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreError("commit manifest transaction", err)
	}
	return nil
}

// Remove deletes a document and its chunk refs. Removing an untracked
// path is a no-op.
func (s *Store) Remove(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE path = ?", path); err != nil {
		return errors.StoreError("remove manifest entry", err)
	}
	return nil
}

// AllPaths returns every tracked document path.
func (s *Store) AllPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM files ORDER BY path")
	if err != nil {
		return nil, errors.StoreError("list manifest paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.StoreError("scan manifest path", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("iterate manifest paths", err)
	}
	return paths, nil
}

// Fingerprints returns path -> fingerprint for every tracked document.
// The synchronizer diffs this map against the current vault scan.
func (s *Store) Fingerprints(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, fingerprint FROM files")
	if err != nil {
		return nil, errors.StoreError("list manifest fingerprints", err)
	}
	defer rows.Close()

	fps := make(map[string]string)
	for rows.Next() {
		var path, fp string
		if err := rows.Scan(&path, &fp); err != nil {
			return nil, errors.StoreError("scan manifest fingerprint", err)
		}
		fps[path] = fp
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("iterate manifest fingerprints", err)
	}
	return fps, nil
}

// ChunkIDs returns the chunk IDs recorded for a document path.
func (s *Store) ChunkIDs(ctx context.Context, path string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chunk_id FROM chunk_refs WHERE path = ? ORDER BY position", path)
	if err != nil {
		return nil, errors.StoreError("list chunk ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.StoreError("scan chunk id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("iterate chunk ids", err)
	}
	return ids, nil
}

// GetChunks looks up chunks by ID for result enrichment. IDs with no
// manifest record are absent from the returned map.
func (s *Store) GetChunks(ctx context.Context, ids []string) (map[string]*ChunkInfo, error) {
	chunks := make(map[string]*ChunkInfo, len(ids))
	if len(ids) == 0 {
		return chunks, nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		SELECT chunk_id, path, position, chunk_type, heading_path, content
		FROM chunk_refs
		WHERE chunk_id = ?
	`)
	if err != nil {
		return nil, errors.StoreError("prepare chunk lookup", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		info := &ChunkInfo{}
		err := stmt.QueryRowContext(ctx, id).Scan(
			&info.ChunkID, &info.Path, &info.Position, &info.Type, &info.HeadingPath, &info.Content)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, errors.StoreError("lookup chunk", err)
		}
		chunks[id] = info
	}

	return chunks, nil
}

// GetState reads a state value. Returns "" when the key is absent.
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.StoreError("read state", err)
	}
	return value, nil
}

// SetState writes a state value.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return errors.StoreError("write state", err)
	}
	return nil
}

// Stats returns document and chunk counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&st.Documents); err != nil {
		return st, errors.StoreError("count manifest files", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunk_refs").Scan(&st.Chunks); err != nil {
		return st, errors.StoreError("count manifest chunks", err)
	}
	return st, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Warn("failed to close manifest database", slog.String("error", err.Error()))
		return fmt.Errorf("close manifest database: %w", err)
	}
	return nil
}
