package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
)

// ImageNormalizer downsizes JPEG and PNG receipts wider than maxWidth before
// handing them to the wrapped storage. Other files pass through untouched.
type ImageNormalizer struct {
	next     port.ReceiptStorage
	maxWidth int
	logger   *zap.Logger
}

// NewImageNormalizer wraps next; maxWidth <= 0 disables resizing
func NewImageNormalizer(next port.ReceiptStorage, maxWidth int, logger *zap.Logger) *ImageNormalizer {
	return &ImageNormalizer{next: next, maxWidth: maxWidth, logger: logger}
}

func (n *ImageNormalizer) Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	format, err := imaging.FormatFromFilename(name)
	if n.maxWidth <= 0 || err != nil || (format != imaging.JPEG && format != imaging.PNG) {
		return n.next.Save(ctx, name, r, size, contentType)
	}

	original, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read receipt: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(original), imaging.AutoOrientation(true))
	if err != nil {
		n.logger.Warn("Receipt is not a decodable image, storing as uploaded",
			zap.String("name", name), zap.Error(err))
		return n.next.Save(ctx, name, bytes.NewReader(original), int64(len(original)), contentType)
	}

	width := img.Bounds().Dx()
	if width <= n.maxWidth {
		return n.next.Save(ctx, name, bytes.NewReader(original), int64(len(original)), contentType)
	}

	resized := imaging.Resize(img, n.maxWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("failed to encode resized receipt: %w", err)
	}

	n.logger.Info("Receipt downsized",
		zap.String("name", name),
		zap.Int("from_width", width),
		zap.Int("to_width", n.maxWidth),
		zap.Int("from_bytes", len(original)),
		zap.Int("to_bytes", buf.Len()))
	return n.next.Save(ctx, name, &buf, int64(buf.Len()), contentType)
}

func (n *ImageNormalizer) Open(ctx context.Context, name string) (io.ReadCloser, *port.ReceiptInfo, error) {
	return n.next.Open(ctx, name)
}

func (n *ImageNormalizer) Delete(ctx context.Context, name string) error {
	return n.next.Delete(ctx, name)
}

var _ port.ReceiptStorage = (*ImageNormalizer)(nil)
