package port

import (
	"context"
	"io"
)

// ReceiptInfo describes a stored receipt object
type ReceiptInfo struct {
	Name        string
	Size        int64
	ContentType string
}

// ReceiptStorage stores uploaded receipt files by name.
// Open and Delete on a missing name return entity.ErrNotFound; Delete is idempotent
// for backends that cannot tell.
type ReceiptStorage interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, *ReceiptInfo, error)
	Delete(ctx context.Context, name string) error
}
