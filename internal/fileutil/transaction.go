package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// WriteTransaction applies a set of file writes with rollback support.
// Existing files are backed up before the first write is applied; if any
// write fails, previously applied writes are restored. Used when editing a
// bundle in place, where a half-applied update must not survive a failure.
type WriteTransaction struct {
	id         string
	writes     []stagedWrite
	tempDir    string
	committed  bool
	rolledBack bool
	mu         sync.Mutex
}

type stagedWrite struct {
	path    string
	content []byte
	mode    os.FileMode
	backup  string // backup of the original, empty if the file did not exist
	applied bool
}

// NewWriteTransaction creates a transaction staging into a fresh temp directory.
func NewWriteTransaction() (*WriteTransaction, error) {
	tx := &WriteTransaction{
		id: fmt.Sprintf("tx-%d", time.Now().UnixNano()),
	}
	tempDir, err := os.MkdirTemp("", "appforge-"+tx.id+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	tx.tempDir = tempDir
	return tx, nil
}

// Write stages a file write.
func (tx *WriteTransaction) Write(path string, content []byte, mode os.FileMode) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed || tx.rolledBack {
		return fmt.Errorf("transaction already finalized")
	}
	tx.writes = append(tx.writes, stagedWrite{path: path, content: content, mode: mode})
	return nil
}

// Commit applies all staged writes. On failure every applied write is rolled
// back to its pre-transaction content.
func (tx *WriteTransaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed {
		return fmt.Errorf("transaction already committed")
	}
	if tx.rolledBack {
		return fmt.Errorf("transaction was rolled back")
	}

	// Backup phase
	for i := range tx.writes {
		w := &tx.writes[i]
		if _, err := os.Stat(w.path); err == nil {
			backup := filepath.Join(tx.tempDir, fmt.Sprintf("backup-%d", i))
			if err := CopyFile(w.path, backup); err != nil {
				tx.rollbackLocked()
				return fmt.Errorf("failed to back up %s: %w", w.path, err)
			}
			w.backup = backup
		}
	}

	// Apply phase
	for i := range tx.writes {
		w := &tx.writes[i]
		if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
			tx.rollbackLocked()
			return fmt.Errorf("failed to create directory for %s: %w", w.path, err)
		}
		if err := AtomicWrite(w.path, w.content, w.mode); err != nil {
			tx.rollbackLocked()
			return fmt.Errorf("failed to write %s: %w", w.path, err)
		}
		w.applied = true
	}

	tx.committed = true
	tx.cleanup()
	return nil
}

// Rollback undoes all applied writes.
func (tx *WriteTransaction) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed {
		return fmt.Errorf("cannot rollback committed transaction")
	}
	if tx.rolledBack {
		return nil
	}
	tx.rollbackLocked()
	return nil
}

func (tx *WriteTransaction) rollbackLocked() {
	for i := len(tx.writes) - 1; i >= 0; i-- {
		w := &tx.writes[i]
		if !w.applied {
			continue
		}
		if w.backup != "" {
			_ = CopyFile(w.backup, w.path)
		} else {
			_ = os.Remove(w.path)
		}
	}
	tx.rolledBack = true
	tx.cleanup()
}

func (tx *WriteTransaction) cleanup() {
	if tx.tempDir != "" {
		_ = os.RemoveAll(tx.tempDir)
		tx.tempDir = ""
	}
}

// Count returns the number of staged writes.
func (tx *WriteTransaction) Count() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.writes)
}
