package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Note is a stored note. Both storage backends hand out this same type.
type Note struct {
	ID        int64
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToMap returns the serialized form of the note: id, title, content, created_at, updated_at.
// Timestamps are ISO-8601 strings in UTC, or nil when unset.
func (n Note) ToMap() map[string]any {
	return map[string]any{
		"id":         n.ID,
		"title":      n.Title,
		"content":    n.Content,
		"created_at": formatTimestamp(n.CreatedAt),
		"updated_at": formatTimestamp(n.UpdatedAt),
	}
}

// MarshalJSON encodes the note using the same contract as ToMap.
func (n Note) MarshalJSON() ([]byte, error) {
	return json.Marshal(noteJSON{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: formatTimestamp(n.CreatedAt),
		UpdatedAt: formatTimestamp(n.UpdatedAt),
	})
}

type noteJSON struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	CreatedAt *string `json:"created_at"`
	UpdatedAt *string `json:"updated_at"`
}

func formatTimestamp(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

// CreateNoteParams contains parameters for creating a note
type CreateNoteParams struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateNoteParams contains parameters for updating a note.
// Nil fields are left untouched.
type UpdateNoteParams struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// ListResult is one page of notes plus the unpaged total.
type ListResult struct {
	Notes    []Note
	Total    int
	Page     int
	PageSize int
}

// Store is the storage contract shared by the durable and the volatile backend.
//
// Missing ids are reported through the found/removed booleans, never as errors.
// A durable implementation reports backing-store failures as *StorageError.
type Store interface {
	Create(ctx context.Context, title, content string) (Note, error)
	Get(ctx context.Context, id int64) (Note, bool, error)
	Update(ctx context.Context, id int64, params UpdateNoteParams) (Note, bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	// List returns notes ordered by descending id, offset (page-1)*pageSize, plus the total count.
	List(ctx context.Context, page, pageSize int) ([]Note, int, error)
}

// StorageError reports a failure of the backing store itself (I/O, connectivity, constraints).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
