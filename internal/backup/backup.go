// Package backup writes encrypted snapshots of the frostbox database and
// restores them. Snapshots are taken with VACUUM INTO, so the server may keep
// running; restore must run while it is stopped.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dukerupert/frostbox/internal/database"
)

// Snapshot writes an encrypted copy of db to dstPath.
func Snapshot(ctx context.Context, db *sql.DB, dstPath, passphrase string, logger *slog.Logger) error {
	tmpDir, err := os.MkdirTemp("", "frostbox-backup-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	plainPath := filepath.Join(tmpDir, "snapshot.db")
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, plainPath); err != nil {
		return fmt.Errorf("vacuum into snapshot: %w", err)
	}
	plaintext, err := os.ReadFile(plainPath)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	sealed, err := Seal(plaintext, passphrase)
	if err != nil {
		return fmt.Errorf("encrypt snapshot: %w", err)
	}
	if err := writeFileAtomic(dstPath, sealed); err != nil {
		return err
	}
	logger.Info("backup written", "path", dstPath, "bytes", len(sealed))
	return nil
}

// Restore decrypts srcPath, checks it is an intact frostbox database and
// puts it in place of dbPath.
func Restore(ctx context.Context, srcPath, dbPath, passphrase string, logger *slog.Logger) error {
	sealed, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	plaintext, err := Open(sealed, passphrase)
	if err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(dbPath), ".frostbox-restore-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	candidate := filepath.Join(tmpDir, "restore.db")
	if err := os.WriteFile(candidate, plaintext, 0o600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	if err := verify(ctx, candidate); err != nil {
		return err
	}

	if err := os.Rename(candidate, dbPath); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")

	logger.Info("backup restored", "from", srcPath, "to", dbPath)
	return nil
}

// verify runs the integrity check and brings the schema up to date.
func verify(ctx context.Context, path string) error {
	db, err := database.Open(path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	// Fold the WAL back in before the file is moved.
	if _, err := db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".frostbox-backup-*")
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write backup file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close backup file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod backup file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move backup file: %w", err)
	}
	return nil
}
