package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetCheckpoint returns the stored checkpoint for a folder pair, or ""
// when the pair has never completed a pass.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, key FolderKey) (string, error) {
	var checkpoint string
	err := s.db.GetContext(ctx, &checkpoint, `
		SELECT checkpoint FROM folder_state
		WHERE source_account = ? AND source_folder = ? AND dest_folder = ?`,
		key.SourceAccount, key.SourceFolder, key.DestFolder,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading checkpoint for %s/%s: %w",
			key.SourceAccount, key.SourceFolder, err)
	}
	return checkpoint, nil
}

// PutCheckpoint records a new checkpoint for a folder pair.
func (s *SQLiteStore) PutCheckpoint(ctx context.Context, key FolderKey, checkpoint string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO folder_state (
			source_account, source_folder, dest_folder, checkpoint, updated_at
		) VALUES (?, ?, ?, ?, ?)`,
		key.SourceAccount, key.SourceFolder, key.DestFolder,
		checkpoint, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing checkpoint for %s/%s: %w",
			key.SourceAccount, key.SourceFolder, err)
	}
	return nil
}

// GetFingerprint returns the fingerprint last recorded for an item, or
// "" when the item was never transferred.
func (s *SQLiteStore) GetFingerprint(ctx context.Context, key FolderKey, uid string) (string, error) {
	var fingerprint string
	err := s.db.GetContext(ctx, &fingerprint, `
		SELECT fingerprint FROM item_state
		WHERE source_account = ? AND source_folder = ? AND dest_folder = ? AND uid = ?`,
		key.SourceAccount, key.SourceFolder, key.DestFolder, uid,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading fingerprint for %q: %w", uid, err)
	}
	return fingerprint, nil
}

// PutFingerprint records the source fingerprint of a transferred item.
func (s *SQLiteStore) PutFingerprint(ctx context.Context, key FolderKey, uid, fingerprint string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO item_state (
			source_account, source_folder, dest_folder, uid, fingerprint, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		key.SourceAccount, key.SourceFolder, key.DestFolder,
		uid, fingerprint, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing fingerprint for %q: %w", uid, err)
	}
	return nil
}

// DeleteFingerprint forgets a single item.
func (s *SQLiteStore) DeleteFingerprint(ctx context.Context, key FolderKey, uid string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM item_state
		WHERE source_account = ? AND source_folder = ? AND dest_folder = ? AND uid = ?`,
		key.SourceAccount, key.SourceFolder, key.DestFolder, uid,
	)
	if err != nil {
		return fmt.Errorf("deleting fingerprint for %q: %w", uid, err)
	}
	return nil
}

// ListUIDs returns every UID with a recorded fingerprint for the
// folder pair.
func (s *SQLiteStore) ListUIDs(ctx context.Context, key FolderKey) ([]string, error) {
	var uids []string
	err := s.db.SelectContext(ctx, &uids, `
		SELECT uid FROM item_state
		WHERE source_account = ? AND source_folder = ? AND dest_folder = ?
		ORDER BY uid`,
		key.SourceAccount, key.SourceFolder, key.DestFolder,
	)
	if err != nil {
		return nil, fmt.Errorf("listing uids for %s/%s: %w",
			key.SourceAccount, key.SourceFolder, err)
	}
	return uids, nil
}

// ClearFolder drops the checkpoint and all item fingerprints for the
// folder pair.
func (s *SQLiteStore) ClearFolder(ctx context.Context, key FolderKey) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM folder_state
		WHERE source_account = ? AND source_folder = ? AND dest_folder = ?`,
		key.SourceAccount, key.SourceFolder, key.DestFolder,
	)
	if err != nil {
		return fmt.Errorf("clearing folder state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM item_state
		WHERE source_account = ? AND source_folder = ? AND dest_folder = ?`,
		key.SourceAccount, key.SourceFolder, key.DestFolder,
	)
	if err != nil {
		return fmt.Errorf("clearing item state: %w", err)
	}

	return tx.Commit()
}
