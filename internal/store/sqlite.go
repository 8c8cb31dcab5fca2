// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides update-log persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// one connection: SQLite has a single writer, and :memory: databases are per-connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS document_updates (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			document TEXT NOT NULL,
			payload BLOB NOT NULL,
			snapshot INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_document_updates_document_seq
			ON document_updates(document, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// AppendUpdate stores payload at the end of the document's log.
func (s *SQLiteStore) AppendUpdate(ctx context.Context, document string, payload []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO document_updates (document, payload, snapshot, created_at)
		VALUES (?, ?, 0, ?)
	`, document, payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("inserting update: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading update seq: %w", err)
	}
	return seq, nil
}

// LoadUpdates returns the document's records after afterSeq in order.
func (s *SQLiteStore) LoadUpdates(ctx context.Context, document string, afterSeq int64) ([]UpdateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, document, payload, snapshot, created_at
		FROM document_updates
		WHERE document = ? AND seq > ?
		ORDER BY seq ASC
	`, document, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("querying updates: %w", err)
	}
	defer rows.Close()

	var out []UpdateRecord
	for rows.Next() {
		var (
			rec       UpdateRecord
			snapshot  int
			createdAt string
		)
		if err := rows.Scan(&rec.Seq, &rec.Document, &rec.Payload, &snapshot, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning update: %w", err)
		}
		rec.Snapshot = snapshot != 0
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating updates: %w", err)
	}
	return out, nil
}

// Compact replaces the document's log with snapshot in one transaction.
func (s *SQLiteStore) Compact(ctx context.Context, document string, snapshot []byte) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning compaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM document_updates WHERE document = ?`, document)
	if err != nil {
		return 0, fmt.Errorf("deleting updates: %w", err)
	}
	dropped, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		INSERT INTO document_updates (document, payload, snapshot, created_at)
		VALUES (?, ?, 1, ?)
	`, document, snapshot, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("inserting snapshot: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading snapshot seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing compaction: %w", err)
	}
	s.logger.Info("compacted document", "document", document, "dropped", dropped, "seq", seq)
	return seq, nil
}

// DocumentStats returns log statistics for document.
func (s *SQLiteStore) DocumentStats(ctx context.Context, document string) (*DocumentStats, error) {
	var (
		stats     = DocumentStats{Document: document}
		bytes     sql.NullInt64
		lastSeq   sql.NullInt64
		updatedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(LENGTH(payload)), MAX(seq), MAX(created_at)
		FROM document_updates
		WHERE document = ?
	`, document).Scan(&stats.Updates, &bytes, &lastSeq, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("querying document stats: %w", err)
	}
	if stats.Updates == 0 {
		return nil, ErrNotFound
	}
	stats.Bytes = bytes.Int64
	stats.LastSeq = lastSeq.Int64
	if updatedAt.Valid {
		stats.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
	}
	return &stats, nil
}

// ListDocuments returns every document name in sorted order.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT document FROM document_updates ORDER BY document`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
