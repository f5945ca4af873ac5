// Package export writes a JSON snapshot of every note to object storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kuitang/notekeeper/internal/notes"
	"github.com/kuitang/notekeeper/internal/obs"
)

// KeyPrefix is the object key prefix of every snapshot.
const KeyPrefix = "exports/"

// batchSize is the page size used to walk the active store.
const batchSize = 100

// ObjectStore is the subset of s3client.Client the exporter needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
}

// Snapshot is the document written for one export.
type Snapshot struct {
	ExportedAt string       `json:"exported_at"`
	Storage    string       `json:"storage"`
	Notes      []notes.Note `json:"notes"`
}

// Result describes a finished export.
type Result struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Exporter snapshots a notes service into an object store.
type Exporter struct {
	store ObjectStore
	now   func() time.Time
}

// New returns an exporter writing to store.
func New(store ObjectStore) *Exporter {
	return &Exporter{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Export walks every page of svc, newest first, and writes one snapshot object.
func (e *Exporter) Export(ctx context.Context, svc *notes.Service) (Result, error) {
	all := make([]notes.Note, 0, batchSize)
	for page := 1; ; page++ {
		result, err := svc.List(ctx, page, batchSize)
		if err != nil {
			return Result{}, fmt.Errorf("list page %d: %w", page, err)
		}
		all = append(all, result.Notes...)
		if len(result.Notes) < batchSize || page*batchSize >= result.Total {
			break
		}
	}

	now := e.now()
	body, err := json.Marshal(Snapshot{
		ExportedAt: now.Format(time.RFC3339Nano),
		Storage:    svc.Backend(),
		Notes:      all,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode snapshot: %w", err)
	}

	key := fmt.Sprintf("%s%s-%s.json", KeyPrefix, now.Format("20060102T150405Z"), uuid.NewString())
	if err := e.store.PutObject(ctx, key, body, "application/json"); err != nil {
		return Result{}, err
	}

	obs.From(ctx).With("pkg", "export").Info("notes_exported", "key", key, "count", len(all), "backend", svc.Backend())
	return Result{Key: key, Count: len(all)}, nil
}
