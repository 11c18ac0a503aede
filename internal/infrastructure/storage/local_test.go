package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/domain/entity"
)

func newLocal(t *testing.T) (*LocalReceiptStorage, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := NewLocalReceiptStorage(dir, zap.NewNop())
	require.NoError(t, err)
	return s, dir
}

func TestLocalReceiptStorage_SaveOpenDelete(t *testing.T) {
	s, dir := newLocal(t)
	ctx := context.Background()
	content := []byte("%PDF-1.4 receipt")

	require.NoError(t, s.Save(ctx, "1-abc.pdf", bytes.NewReader(content), int64(len(content)), "application/pdf"))

	onDisk, err := os.ReadFile(filepath.Join(dir, "1-abc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)

	rc, info, err := s.Open(ctx, "1-abc.pdf")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, got)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)

	require.NoError(t, s.Delete(ctx, "1-abc.pdf"))
	assert.ErrorIs(t, s.Delete(ctx, "1-abc.pdf"), entity.ErrNotFound)

	_, _, err = s.Open(ctx, "1-abc.pdf")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestLocalReceiptStorage_RejectsEscapingNames(t *testing.T) {
	s, _ := newLocal(t)
	ctx := context.Background()

	for _, name := range []string{"", "..", "../secret.txt", "sub/dir.png", `..\win.png`} {
		t.Run(name, func(t *testing.T) {
			err := s.Save(ctx, name, strings.NewReader("x"), 1, "text/plain")
			assert.Error(t, err)

			_, _, err = s.Open(ctx, name)
			assert.ErrorIs(t, err, entity.ErrNotFound)
		})
	}
}

func TestLocalReceiptStorage_ShortWriteLeavesNothing(t *testing.T) {
	s, dir := newLocal(t)

	err := s.Save(context.Background(), "1-abc.png", strings.NewReader("abc"), 10, "image/png")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalReceiptStorage_CancelledContext(t *testing.T) {
	s, _ := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Save(ctx, "1-abc.png", strings.NewReader("abc"), 3, "image/png")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", contentTypeFor("a.PNG"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("noext"))
}
