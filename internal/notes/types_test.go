package notes

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNote_ToMap(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	note := Note{ID: 3, Title: "t", Content: "c", CreatedAt: created, UpdatedAt: created.Add(time.Minute)}

	m := note.ToMap()
	assert.Equal(t, int64(3), m["id"])
	assert.Equal(t, "t", m["title"])
	assert.Equal(t, "c", m["content"])
	require.NotNil(t, m["created_at"])
	assert.Equal(t, "2026-03-01T17:00:00Z", *m["created_at"].(*string))
	assert.Equal(t, "2026-03-01T17:01:00Z", *m["updated_at"].(*string))
}

func TestNote_MarshalJSON(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	data, err := json.Marshal(Note{ID: 1, Title: "hello", CreatedAt: ts, UpdatedAt: ts})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 1,
		"title": "hello",
		"content": "",
		"created_at": "2026-03-01T12:00:00.5Z",
		"updated_at": "2026-03-01T12:00:00.5Z"
	}`, string(data))
}

func TestNote_MarshalJSONZeroTimestamps(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(Note{ID: 2, Title: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"title":"x","content":"","created_at":null,"updated_at":null}`, string(data))
}
