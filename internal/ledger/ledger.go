// Package ledger maintains a small SQLite-backed download history.
// SyncDriver records every successful download here; it does not query
// the ledger when deciding whether to download, which it decides from
// the local filesystem alone.
//
// Migrations run through pressly/goose/v3, embedded rather than read from
// disk so the binary stays self-contained.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ledger wraps a *sql.DB opened against a per-account SQLite file.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if absent) the ledger database at path and applies
// any pending migrations.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()

		return nil, fmt.Errorf("ledger: setting dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()

		return nil, fmt.Errorf("ledger: applying migrations: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record marks one asset+size as downloaded to path.
func (l *Ledger) Record(ctx context.Context, account, album, assetID, sizeLabel, path string, byteSize int64, downloadedAtUnix int64) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO downloads (account, album, asset_id, size_label, path, byte_size, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, album, asset_id, size_label) DO UPDATE SET
			path = excluded.path,
			byte_size = excluded.byte_size,
			downloaded_at = excluded.downloaded_at
	`, account, album, assetID, sizeLabel, path, byteSize, downloadedAtUnix)
	if err != nil {
		return fmt.Errorf("ledger: recording download: %w", err)
	}

	return nil
}

// Known reports whether assetID+sizeLabel has already been recorded for
// account/album, and the byte size it was recorded at.
func (l *Ledger) Known(ctx context.Context, account, album, assetID, sizeLabel string) (known bool, byteSize int64, err error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT byte_size FROM downloads
		WHERE account = ? AND album = ? AND asset_id = ? AND size_label = ?
	`, account, album, assetID, sizeLabel)

	if scanErr := row.Scan(&byteSize); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return false, 0, nil
		}

		return false, 0, fmt.Errorf("ledger: looking up download: %w", scanErr)
	}

	return true, byteSize, nil
}
