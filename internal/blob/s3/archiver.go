package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/alanyoungcy/ghostyield/internal/domain"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeJSONL = "application/x-ndjson"
)

// Archiver implements domain.ResultArchiver. Each result is uploaded as its
// own JSON object as soon as it is archived, and buffered for a JSONL batch
// that Flush uploads:
//
//	{prefix}/results/2026/10/16/{result-id}.json
//	{prefix}/batches/2026-10-16/20261016T120000Z.jsonl
type Archiver struct {
	writer domain.BlobWriter
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	pending []domain.ArbitrageResult
}

// NewArchiver creates an Archiver writing under prefix.
func NewArchiver(writer domain.BlobWriter, prefix string) *Archiver {
	return &Archiver{writer: writer, prefix: prefix, now: time.Now}
}

// Archive uploads one result and queues it for the next batch. The result is
// queued even when the single upload fails, so the batch still carries it.
func (a *Archiver) Archive(ctx context.Context, result domain.ArbitrageResult) error {
	a.mu.Lock()
	a.pending = append(a.pending, result)
	a.mu.Unlock()

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("s3blob: marshal result %s: %w", result.ID, err)
	}
	key := a.resultPath(result)
	if err := a.writer.Put(ctx, key, bytes.NewReader(data), contentTypeJSON); err != nil {
		return fmt.Errorf("s3blob: archive result %s: %w", result.ID, err)
	}
	return nil
}

// Flush uploads every queued result as one JSONL object. On failure the
// results stay queued for the next Flush.
func (a *Archiver) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	buf, err := marshalJSONL(batch)
	if err != nil {
		return fmt.Errorf("s3blob: marshal batch: %w", err)
	}
	key := a.batchPath(a.now().UTC())
	if err := a.writer.PutMultipart(ctx, key, bytes.NewReader(buf), minPartSize); err != nil {
		a.mu.Lock()
		a.pending = append(batch, a.pending...)
		a.mu.Unlock()
		return fmt.Errorf("s3blob: flush %d results: %w", len(batch), err)
	}
	return nil
}

// Pending reports how many results wait for the next Flush.
func (a *Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Archiver) resultPath(r domain.ArbitrageResult) string {
	ts := r.CompletedAt
	if ts.IsZero() {
		ts = a.now()
	}
	return path.Join(a.prefix, "results", ts.UTC().Format("2006/01/02"), r.ID+".json")
}

func (a *Archiver) batchPath(ts time.Time) string {
	return path.Join(a.prefix, "batches", ts.Format("2006-01-02"), ts.Format("20060102T150405Z")+".jsonl")
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.ResultArchiver = (*Archiver)(nil)
