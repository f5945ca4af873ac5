// Package memstore is the volatile notes store. It keeps notes in process memory only and
// never fails; everything it holds is lost when the process exits.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/kuitang/notekeeper/internal/notes"
	"github.com/puzpuzpuz/xsync/v3"
)

// Store is an in-memory notes.Store.
type Store struct {
	notes  *xsync.MapOf[int64, notes.Note]
	nextID atomic.Int64
	now    func() time.Time
}

var _ notes.Store = (*Store)(nil)

// New creates an empty store. IDs start at 1.
func New() *Store {
	return &Store{
		notes: xsync.NewMapOf[int64, notes.Note](),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new note under the next ID.
func (s *Store) Create(_ context.Context, title, content string) (notes.Note, error) {
	now := s.now()
	note := notes.Note{
		ID:        s.nextID.Add(1),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.notes.Store(note.ID, note)
	return note, nil
}

// Get returns a copy of the stored note.
func (s *Store) Get(_ context.Context, id int64) (notes.Note, bool, error) {
	note, ok := s.notes.Load(id)
	return note, ok, nil
}

// Update applies the non-nil fields atomically with respect to other writers of the same ID.
func (s *Store) Update(_ context.Context, id int64, params notes.UpdateNoteParams) (notes.Note, bool, error) {
	updated, ok := s.notes.Compute(id, func(old notes.Note, loaded bool) (notes.Note, bool) {
		if !loaded {
			return old, true
		}
		if params.Title != nil {
			old.Title = *params.Title
		}
		if params.Content != nil {
			old.Content = *params.Content
		}
		old.UpdatedAt = s.now()
		if old.UpdatedAt.Before(old.CreatedAt) {
			old.UpdatedAt = old.CreatedAt
		}
		return old, false
	})
	return updated, ok, nil
}

// Delete removes the note if present.
func (s *Store) Delete(_ context.Context, id int64) (bool, error) {
	_, removed := s.notes.LoadAndDelete(id)
	return removed, nil
}

// List sorts a snapshot of all notes by descending ID and returns the requested page.
func (s *Store) List(_ context.Context, page, pageSize int) ([]notes.Note, int, error) {
	snapshot := make([]notes.Note, 0, s.notes.Size())
	s.notes.Range(func(_ int64, note notes.Note) bool {
		snapshot = append(snapshot, note)
		return true
	})
	slices.SortFunc(snapshot, func(a, b notes.Note) int {
		return cmp.Compare(b.ID, a.ID)
	})

	total := len(snapshot)
	start := (page - 1) * pageSize
	if page < 1 || pageSize < 1 || start >= total {
		return []notes.Note{}, total, nil
	}
	end := min(start+pageSize, total)
	return snapshot[start:end], total, nil
}

// Len returns the number of stored notes.
func (s *Store) Len() int {
	return s.notes.Size()
}
