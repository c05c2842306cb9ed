package fileutil

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// AtomicWrite writes data to a file atomically using a tmp file + rename pattern.
// The file is written to a temporary file in the same directory, synced to disk,
// then renamed over the target path. Readers never observe a partial file.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".appforge-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}

	// Rename is atomic when source and destination share a filesystem.
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	success = true
	return nil
}

// AtomicWriteString is a convenience wrapper for AtomicWrite that accepts a string.
func AtomicWriteString(path string, content string, perm os.FileMode) error {
	return AtomicWrite(path, []byte(content), perm)
}

// WriteChunked writes data to a file in fixed-size chunks with a short pause
// between chunks. This shapes peak memory and I/O pressure during large
// multi-file writes; it is not required for correctness. A zero chunkSize
// disables chunking. The pause honors context cancellation.
func WriteChunked(ctx context.Context, path string, data []byte, perm os.FileMode, chunkSize int, pause time.Duration) error {
	if chunkSize <= 0 || len(data) <= chunkSize {
		return os.WriteFile(path, data, perm)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()

	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := f.Write(data[off:end]); err != nil {
			return err
		}
		if end == len(data) || pause <= 0 {
			continue
		}
		select {
		case <-time.After(pause):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.Sync()
}

// CopyFile copies a file from src to dst, preserving permissions.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return os.WriteFile(dst, data, 0644)
	}
	return os.WriteFile(dst, data, info.Mode())
}
