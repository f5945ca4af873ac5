package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/kuitang/notekeeper/internal/errs"
	"github.com/kuitang/notekeeper/internal/logutil"
	"github.com/kuitang/notekeeper/internal/obs"
)

const (
	// BackendDurable names the persistent backend in logs and metrics.
	BackendDurable = "durable"

	// BackendVolatile names the in-memory backend in logs and metrics.
	BackendVolatile = "volatile"

	storageErrLogMaxChars = 300
)

var (
	// ErrTitleRequired is returned when a create has no usable title.
	ErrTitleRequired = errs.New(errs.InvalidArgument, "title is required and must be non-empty")

	// ErrTitleEmpty is returned when an update supplies a blank title.
	ErrTitleEmpty = errs.New(errs.InvalidArgument, "title must be non-empty if provided")

	// ErrInvalidPage is returned for page < 1 or page size < 1.
	ErrInvalidPage = errs.New(errs.InvalidArgument, "page and page_size must be positive")
)

var fallbackTransitions = metrics.NewCounter("notes_fallback_transitions_total")

// Service handles note CRUD against the active store.
//
// The service starts on the durable store. The first *StorageError it sees from the durable
// store switches it, permanently, to a volatile store, and the failed operation is re-run
// there. Callers never see a StorageError.
type Service struct {
	mu          sync.RWMutex
	active      Store
	degraded    bool
	newVolatile func() Store
}

// NewService creates a notes service bound to durable. newVolatile is called at most once,
// when the service falls back. A nil durable store starts the service already degraded.
func NewService(durable Store, newVolatile func() Store) *Service {
	s := &Service{
		active:      durable,
		newVolatile: newVolatile,
	}
	if durable == nil {
		s.active = newVolatile()
		s.degraded = true
		fallbackTransitions.Inc()
		obs.Pkg("notes").Warn("notes_storage_unavailable_at_start", "backend", BackendVolatile)
	}
	return s
}

// Degraded reports whether the service has switched to volatile storage.
func (s *Service) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Backend returns the name of the active backend.
func (s *Service) Backend() string {
	if s.Degraded() {
		return BackendVolatile
	}
	return BackendDurable
}

func (s *Service) current() (Store, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.degraded
}

// fallBack switches to the volatile store if no other caller has already done so,
// and returns the store every caller must use from now on.
func (s *Service) fallBack(ctx context.Context, op string, cause error) Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return s.active
	}
	s.active = s.newVolatile()
	s.degraded = true
	fallbackTransitions.Inc()
	obs.From(ctx).With("pkg", "notes").Warn(
		"notes_storage_fallback",
		"op", op,
		"error", logutil.TruncateForLog(cause.Error(), storageErrLogMaxChars),
		"backend", BackendVolatile,
	)
	return s.active
}

// do runs fn against the active store and applies the fallback protocol.
// fn must write its results into captured variables, so a retry overwrites them.
func (s *Service) do(ctx context.Context, op string, fn func(Store) error) error {
	store, degraded := s.current()
	err := fn(store)
	countOp(op, degraded)
	if degraded {
		return err
	}
	if err == nil {
		// Another caller may have switched backends while fn ran; redo the op on the
		// store every later reader sees.
		if volatile, nowDegraded := s.current(); nowDegraded {
			err = fn(volatile)
			countOp(op, true)
		}
		return err
	}

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		return err
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`notes_storage_errors_total{op=%q}`, op)).Inc()

	volatile := s.fallBack(ctx, op, err)
	err = fn(volatile)
	countOp(op, true)
	return err
}

func countOp(op string, degraded bool) {
	backend := BackendDurable
	if degraded {
		backend = BackendVolatile
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`notes_operations_total{op=%q,backend=%q}`, op, backend)).Inc()
}

// Create creates a new note. The title is trimmed and must not be empty.
func (s *Service) Create(ctx context.Context, params CreateNoteParams) (Note, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return Note{}, ErrTitleRequired
	}

	var note Note
	err := s.do(ctx, "create", func(st Store) (err error) {
		note, err = st.Create(ctx, title, params.Content)
		return err
	})
	return note, err
}

// Get retrieves a note by ID. found is false when no such note exists.
func (s *Service) Get(ctx context.Context, id int64) (note Note, found bool, err error) {
	if id < 1 {
		return Note{}, false, nil
	}
	err = s.do(ctx, "get", func(st Store) (err error) {
		note, found, err = st.Get(ctx, id)
		return err
	})
	return note, found, err
}

// Update applies the supplied fields and refreshes updated_at.
// An update with no fields still refreshes updated_at.
func (s *Service) Update(ctx context.Context, id int64, params UpdateNoteParams) (note Note, found bool, err error) {
	if params.Title != nil {
		title := strings.TrimSpace(*params.Title)
		if title == "" {
			return Note{}, false, ErrTitleEmpty
		}
		params.Title = &title
	}
	if id < 1 {
		return Note{}, false, nil
	}
	err = s.do(ctx, "update", func(st Store) (err error) {
		note, found, err = st.Update(ctx, id, params)
		return err
	})
	return note, found, err
}

// Delete removes a note and reports whether it existed.
func (s *Service) Delete(ctx context.Context, id int64) (removed bool, err error) {
	if id < 1 {
		return false, nil
	}
	err = s.do(ctx, "delete", func(st Store) (err error) {
		removed, err = st.Delete(ctx, id)
		return err
	})
	return removed, err
}

// List returns one page of notes ordered by descending ID.
func (s *Service) List(ctx context.Context, page, pageSize int) (ListResult, error) {
	if page < 1 || pageSize < 1 {
		return ListResult{}, ErrInvalidPage
	}

	var (
		items []Note
		total int
	)
	err := s.do(ctx, "list", func(st Store) (err error) {
		items, total, err = st.List(ctx, page, pageSize)
		return err
	})
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Note{}
	}
	return ListResult{Notes: items, Total: total, Page: page, PageSize: pageSize}, nil
}
