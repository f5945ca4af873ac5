package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kuitang/notekeeper/internal/memstore"
	"github.com/kuitang/notekeeper/internal/notes"
	"github.com/kuitang/notekeeper/internal/s3client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() *notes.Service {
	return notes.NewService(memstore.New(), func() notes.Store { return memstore.New() })
}

func TestExport_WritesSnapshot(t *testing.T) {
	t.Parallel()
	client := s3client.TestClient(t, "exports-test")
	svc := newService()
	ctx := context.Background()

	const n = 230
	for i := 0; i < n; i++ {
		_, err := svc.Create(ctx, notes.CreateNoteParams{Title: fmt.Sprintf("note %d", i)})
		require.NoError(t, err)
	}

	exporter := New(client)
	exporter.now = func() time.Time { return time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC) }

	result, err := exporter.Export(ctx, svc)
	require.NoError(t, err)
	assert.Equal(t, n, result.Count)
	assert.True(t, strings.HasPrefix(result.Key, "exports/20260506T070809Z-"), result.Key)
	assert.True(t, strings.HasSuffix(result.Key, ".json"))

	data, err := client.GetObject(ctx, result.Key)
	require.NoError(t, err)

	var snap struct {
		ExportedAt string           `json:"exported_at"`
		Storage    string           `json:"storage"`
		Notes      []map[string]any `json:"notes"`
	}
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "2026-05-06T07:08:09Z", snap.ExportedAt)
	assert.Equal(t, notes.BackendDurable, snap.Storage)
	require.Len(t, snap.Notes, n)
	assert.Equal(t, float64(n), snap.Notes[0]["id"])
	assert.Equal(t, float64(1), snap.Notes[n-1]["id"])

	keys, err := client.ListKeys(ctx, KeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{result.Key}, keys)
}

func TestExport_EmptyStore(t *testing.T) {
	t.Parallel()
	client := s3client.TestClient(t, "exports-empty")

	result, err := New(client).Export(context.Background(), newService())
	require.NoError(t, err)
	assert.Zero(t, result.Count)

	data, err := client.GetObject(context.Background(), result.Key)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"notes":[]`)
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, []byte, string) error {
	return errors.New("bucket unreachable")
}

func TestExport_PutFailure(t *testing.T) {
	t.Parallel()
	_, err := New(failingStore{}).Export(context.Background(), newService())
	assert.ErrorContains(t, err, "bucket unreachable")
}
