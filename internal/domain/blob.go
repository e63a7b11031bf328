package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// ResultArchiver copies arbitrage results to cold storage.
type ResultArchiver interface {
	Archive(ctx context.Context, result ArbitrageResult) error
	Flush(ctx context.Context) error
}
