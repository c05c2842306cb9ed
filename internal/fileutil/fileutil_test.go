package fileutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, AtomicWrite(path, []byte("hello"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestAtomicWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, AtomicWrite(path, []byte("first"), 0644))
	require.NoError(t, AtomicWrite(path, []byte("second"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AtomicWrite(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name())
}

func TestWriteChunked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	data := bytes.Repeat([]byte("abcdefgh"), 100)

	require.NoError(t, WriteChunked(context.Background(), path, data, 0644, 64, time.Microsecond))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteChunkedSmallPayloadSinglePass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.txt")
	require.NoError(t, WriteChunked(context.Background(), path, []byte("tiny"), 0644, 1024, time.Second))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tiny", string(got))
}

func TestWriteChunkedCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "big.bin")
	data := bytes.Repeat([]byte("x"), 1000)
	err := WriteChunked(ctx, path, data, 0644, 10, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTransactionCommit(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.txt")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	tx, err := NewWriteTransaction()
	require.NoError(t, err)
	require.NoError(t, tx.Write(existing, []byte("new"), 0644))
	require.NoError(t, tx.Write(filepath.Join(dir, "fresh.txt"), []byte("created"), 0644))
	assert.Equal(t, 2, tx.Count())
	require.NoError(t, tx.Commit())

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	data, err = os.ReadFile(filepath.Join(dir, "fresh.txt"))
	require.NoError(t, err)
	assert.Equal(t, "created", string(data))
}

func TestTransactionRollbackRestores(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.txt")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))

	tx, err := NewWriteTransaction()
	require.NoError(t, err)
	require.NoError(t, tx.Write(existing, []byte("new"), 0644))
	require.NoError(t, tx.Rollback())

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	require.Error(t, tx.Commit(), "rolled-back transaction cannot commit")
}

func TestTransactionWriteAfterCommitFails(t *testing.T) {
	tx, err := NewWriteTransaction()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.Error(t, tx.Write(filepath.Join(t.TempDir(), "x"), []byte("x"), 0644))
}

func TestCopyFilePreservesMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh"), 0755))

	dst := filepath.Join(dir, "dst.sh")
	require.NoError(t, CopyFile(src, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}
