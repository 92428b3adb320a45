package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
	"github.com/klauspost/compress/zstd"
)

// backupPrefix names backup files as codeaudit-backup-<utc timestamp>.json.zst.
const backupPrefix = "codeaudit-backup-"

// WriteBackup writes a zstd-compressed JSON snapshot of the store into dir
// and returns the file path.
func WriteBackup(ctx context.Context, st contract.Store, dir string) (string, error) {
	snap, err := st.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, backupPrefix+snap.TakenAt.UTC().Format("20060102T150405.000000000Z")+".json.zst")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(snap); err != nil {
		_ = enc.Close()
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to flush backup: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync backup: %w", err)
	}
	return path, nil
}

// ReadBackup decodes a backup written by WriteBackup.
func ReadBackup(path string) (schema.Snapshot, error) {
	var snap schema.Snapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return snap, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// DefaultBackupDir places backups next to the SQLite file, or in the working
// directory for server backends.
func DefaultBackupDir(backend schema.DatabaseBackend, connStr string) string {
	if backend == schema.SQLiteBackend && connStr != MemoryPath {
		if connStr == "" {
			connStr = contract.GetDBFilePath()
		}
		return filepath.Dir(connStr)
	}
	return "."
}

// BackupAndPurge is the reset operation: nothing is deleted unless the
// backup was written first.
func BackupAndPurge(ctx context.Context, st contract.Store, dir string) (string, error) {
	path, err := WriteBackup(ctx, st, dir)
	if err != nil {
		return "", fmt.Errorf("backup failed, store left untouched: %w", err)
	}
	if err := st.Purge(ctx); err != nil {
		return path, err
	}
	return path, nil
}

