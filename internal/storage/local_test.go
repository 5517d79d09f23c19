package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/courtbill/internal"
	"github.com/dukerupert/courtbill/internal/domain"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "/documents")
	require.NoError(t, err)
	ctx := context.Background()
	key := "invoices/tenant-1/CLB-2026-000001.pdf"

	url, err := s.Put(ctx, key, strings.NewReader("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "/documents/invoices/tenant-1/CLB-2026-000001.pdf", url)

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key), "delete is idempotent")

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, domain.IsCode(err, domain.ENOTFOUND))
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "/documents")
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../../etc/passwd", strings.NewReader("x"), "text/plain")
	assert.ErrorIs(t, err, ErrBadKey)
	assert.True(t, domain.IsCode(err, domain.EINVALID))
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	_, err := s.Put(ctx, "a.pdf", strings.NewReader("pdf"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	ok, _ := s.Exists(ctx, "a.pdf")
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "a.pdf"))
	assert.Equal(t, 0, s.Len())
}

func TestLocalStorage_OverwriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "/invoices")
	require.NoError(t, err)
	ctx := context.Background()
	key := "tenant-1/CLB-2026-000002.pdf"

	_, err = s.Put(ctx, key, strings.NewReader("first"), "application/pdf")
	require.NoError(t, err)
	_, err = s.Put(ctx, key, strings.NewReader("second"), "application/pdf")
	require.NoError(t, err)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "tenant-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewStorage(t *testing.T) {
	s, err := NewStorage(internal.StorageConfig{Provider: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	s, err = NewStorage(internal.StorageConfig{Provider: "local", LocalPath: t.TempDir(), LocalURL: "/invoices"})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = NewStorage(internal.StorageConfig{Provider: "s3"})
	assert.ErrorIs(t, err, ErrBadBackend)
}
