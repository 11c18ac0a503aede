// Package storage holds the receipt storage backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
)

// LocalReceiptStorage implements port.ReceiptStorage on a local directory
type LocalReceiptStorage struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalReceiptStorage creates baseDir if needed
func NewLocalReceiptStorage(baseDir string, logger *zap.Logger) (*LocalReceiptStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("receipt directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create receipt directory: %w", err)
	}
	return &LocalReceiptStorage{baseDir: baseDir, logger: logger}, nil
}

// Save streams r into a temporary file and renames it into place, so readers never
// observe a partially written receipt.
func (s *LocalReceiptStorage) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	fullPath, err := s.resolve(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		s.logger.Error("Failed to create temp file", zap.String("dir", s.baseDir), zap.Error(err))
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.logger.Error("Failed to write file", zap.String("path", fullPath), zap.Error(err))
		return fmt.Errorf("failed to write file: %w", err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("short write for %s: got %d bytes, want %d", name, written, size)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	s.logger.Debug("File saved successfully",
		zap.String("path", fullPath),
		zap.Int64("size", written))
	return nil
}

// Open returns the receipt contents; the caller closes the reader
func (s *LocalReceiptStorage) Open(ctx context.Context, name string) (io.ReadCloser, *port.ReceiptInfo, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, nil, entity.ErrNotFound
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, entity.ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		_ = f.Close()
		return nil, nil, entity.ErrNotFound
	}

	return f, &port.ReceiptInfo{
		Name:        name,
		Size:        stat.Size(),
		ContentType: contentTypeFor(name),
	}, nil
}

// Delete removes the receipt; a missing file reports entity.ErrNotFound
func (s *LocalReceiptStorage) Delete(ctx context.Context, name string) error {
	fullPath, err := s.resolve(name)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entity.ErrNotFound
		}
		s.logger.Error("Failed to delete file", zap.String("path", fullPath), zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}

	s.logger.Debug("File deleted successfully", zap.String("path", fullPath))
	return nil
}

// resolve maps a receipt name to a path and rejects anything that escapes baseDir
func (s *LocalReceiptStorage) resolve(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid receipt name: %q", name)
	}

	fullPath := filepath.Join(s.baseDir, name)
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", name)
	}
	return absPath, nil
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ port.ReceiptStorage = (*LocalReceiptStorage)(nil)
