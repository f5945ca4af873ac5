package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kuitang/notekeeper/internal/export"
	"github.com/kuitang/notekeeper/internal/memstore"
	"github.com/kuitang/notekeeper/internal/notes"
	"github.com/kuitang/notekeeper/internal/s3client"
	"github.com/kuitang/notekeeper/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type testEnv struct {
	handler http.Handler
	svc     *notes.Service
	s3      *s3client.Client
}

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	Helper()
	require.TestingT
}

func buildEnv(durable notes.Store, exporter *export.Exporter) *testEnv {
	svc := notes.NewService(durable, func() notes.Store { return memstore.New() })
	provider := notes.NewProvider(func() *notes.Service { return svc })

	mux := http.NewServeMux()
	NewHandler(provider, exporter).RegisterRoutes(mux)
	return &testEnv{
		handler: RecoverMiddleware(CORSMiddleware([]string{"*"}, NewRouter(mux))),
		svc:     svc,
	}
}

func newTestEnv(t testing.TB, durable notes.Store, withExport bool) *testEnv {
	t.Helper()
	if !withExport {
		return buildEnv(durable, nil)
	}
	client := s3client.TestClient(t, "api-exports")
	env := buildEnv(durable, export.New(client))
	env.s3 = client
	return env
}

func newMemEnv() *testEnv {
	return buildEnv(memstore.New(), nil)
}

func (e *testEnv) do(t testingT, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t testingT, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

type noteBody struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	CreatedAt *string `json:"created_at"`
	UpdatedAt *string `json:"updated_at"`
}

type listBody struct {
	Data       []noteBody `json:"data"`
	Pagination struct {
		Total        int  `json:"total"`
		TotalPages   int  `json:"total_pages"`
		FirstPage    int  `json:"first_page"`
		LastPage     int  `json:"last_page"`
		Page         int  `json:"page"`
		PreviousPage *int `json:"previous_page"`
		NextPage     *int `json:"next_page"`
	} `json:"pagination"`
}

func assertError(t testingT, rec *httptest.ResponseRecorder, status int) ErrorResponse {
	t.Helper()
	require.Equal(t, status, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, status, body.Code)
	assert.Equal(t, http.StatusText(status), body.Status)
	assert.NotEmpty(t, body.Message)
	return body
}

func TestCreateNote(t *testing.T) {
	t.Parallel()
	env := newMemEnv()

	rec := env.do(t, http.MethodPost, "/notes", `{"title":"  Groceries  ","content":"milk"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "http://example.com/notes/1", rec.Header().Get("Location"))
	note := decode[noteBody](t, rec)
	assert.Equal(t, int64(1), note.ID)
	assert.Equal(t, "Groceries", note.Title)
	assert.Equal(t, "milk", note.Content)
	require.NotNil(t, note.CreatedAt)
	assert.Equal(t, note.CreatedAt, note.UpdatedAt)
}

func TestCreateNote_ContentOptional(t *testing.T) {
	t.Parallel()
	env := newMemEnv()

	for _, body := range []string{`{"title":"a"}`, `{"title":"b","content":null}`} {
		rec := env.do(t, http.MethodPost, "/notes/", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "", decode[noteBody](t, rec).Content)
	}
}

func TestCreateNote_Validation(t *testing.T) {
	t.Parallel()
	env := newMemEnv()

	cases := map[string]string{
		"missing title": `{"content":"x"}`,
		"null title":    `{"title":null}`,
		"blank title":   `{"title":"   "}`,
		"number title":  `{"title":42}`,
		"number body":   `{"title":"ok","content":7}`,
		"array body":    `["title"]`,
		"invalid json":  `{"title":`,
		"empty body":    ``,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/notes", body)
			assertError(t, rec, http.StatusBadRequest)
		})
	}

	result, err := env.svc.List(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, result.Total, "a rejected create reached the store")
}

func TestGetNote(t *testing.T) {
	t.Parallel()
	env := newMemEnv()
	env.do(t, http.MethodPost, "/notes", `{"title":"hello"}`)

	rec := env.do(t, http.MethodGet, "/notes/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", decode[noteBody](t, rec).Title)

	for _, path := range []string{"/notes/2", "/notes/0", "/notes/-1", "/notes/abc", "/notes/1.5"} {
		body := assertError(t, env.do(t, http.MethodGet, path, ""), http.StatusNotFound)
		assert.Equal(t, "Note not found", body.Message, path)
	}
}

func TestUpdateNote(t *testing.T) {
	t.Parallel()
	env := newMemEnv()
	created := decode[noteBody](t, env.do(t, http.MethodPost, "/notes", `{"title":"old","content":"body"}`))

	rec := env.do(t, http.MethodPut, "/notes/1", `{"title":" new "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[noteBody](t, rec)
	assert.Equal(t, "new", updated.Title)
	assert.Equal(t, "body", updated.Content)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	rec = env.do(t, http.MethodPatch, "/notes/1", `{"title":null,"content":"patched"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode[noteBody](t, rec)
	assert.Equal(t, "new", patched.Title)
	assert.Equal(t, "patched", patched.Content)
}

func TestUpdateNote_Validation(t *testing.T) {
	t.Parallel()
	env := newMemEnv()
	env.do(t, http.MethodPost, "/notes", `{"title":"keep"}`)

	assert.Equal(t, "Request body cannot be empty", assertError(t, env.do(t, http.MethodPut, "/notes/1", ""), http.StatusBadRequest).Message)
	assertError(t, env.do(t, http.MethodPut, "/notes/1", `{}`), http.StatusBadRequest)
	assert.Equal(t, "title must be non-empty if provided", assertError(t, env.do(t, http.MethodPut, "/notes/1", `{"title":"  "}`), http.StatusBadRequest).Message)
	assertError(t, env.do(t, http.MethodPut, "/notes/1", `{"title":false}`), http.StatusBadRequest)

	assertError(t, env.do(t, http.MethodPut, "/notes/99", `{"title":"x"}`), http.StatusNotFound)
	assertError(t, env.do(t, http.MethodPut, "/notes/zero", `{"title":"x"}`), http.StatusNotFound)

	got := decode[noteBody](t, env.do(t, http.MethodGet, "/notes/1", ""))
	assert.Equal(t, "keep", got.Title)
}

func TestDeleteNote(t *testing.T) {
	t.Parallel()
	env := newMemEnv()
	env.do(t, http.MethodPost, "/notes", `{"title":"doomed"}`)

	rec := env.do(t, http.MethodDelete, "/notes/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	assertError(t, env.do(t, http.MethodGet, "/notes/1", ""), http.StatusNotFound)
	assertError(t, env.do(t, http.MethodDelete, "/notes/1", ""), http.StatusNotFound)
}

func TestListNotes_EmptyCollection(t *testing.T) {
	t.Parallel()
	env := newMemEnv()

	rec := env.do(t, http.MethodGet, "/notes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"data": [],
		"pagination": {
			"total": 0,
			"total_pages": 1,
			"first_page": 1,
			"last_page": 1,
			"page": 1,
			"previous_page": null,
			"next_page": null
		}
	}`, rec.Body.String())
}

func TestListNotes_SecondPageOfOne(t *testing.T) {
	t.Parallel()
	env := newMemEnv()
	for _, title := range []string{"one", "two", "three"} {
		env.do(t, http.MethodPost, "/notes", fmt.Sprintf(`{"title":%q}`, title))
	}

	rec := env.do(t, http.MethodGet, "/notes?page=2&page_size=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[listBody](t, rec)
	require.Len(t, body.Data, 1)
	assert.Equal(t, int64(2), body.Data[0].ID)
	assert.Equal(t, 3, body.Pagination.Total)
	assert.Equal(t, 3, body.Pagination.TotalPages)
	require.NotNil(t, body.Pagination.PreviousPage)
	require.NotNil(t, body.Pagination.NextPage)
	assert.Equal(t, 1, *body.Pagination.PreviousPage)
	assert.Equal(t, 3, *body.Pagination.NextPage)
}

func TestListNotes_BadParams(t *testing.T) {
	t.Parallel()
	env := newMemEnv()

	for _, q := range []string{"page=0", "page=-2", "page=x", "page_size=0", "page_size=101", "page_size=ten"} {
		assertError(t, env.do(t, http.MethodGet, "/notes?"+q, ""), http.StatusBadRequest)
	}

	rec := env.do(t, http.MethodGet, "/notes?page_size=100", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func testListNotes_WalkAllPages(t *rapid.T) {
	env := newMemEnv()
	n := rapid.IntRange(0, 30).Draw(t, "n")
	for i := 0; i < n; i++ {
		if rec := env.do(t, http.MethodPost, "/notes", fmt.Sprintf(`{"title":"n%d"}`, i)); rec.Code != http.StatusCreated {
			t.Fatalf("create %d: status %d", i, rec.Code)
		}
	}
	pageSize := rapid.IntRange(1, 12).Draw(t, "page_size")

	var seen int
	for page := 1; ; page++ {
		rec := env.do(t, http.MethodGet, fmt.Sprintf("/notes?page=%d&page_size=%d", page, pageSize), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("page %d: status %d", page, rec.Code)
		}
		body := decode[listBody](t, rec)
		seen += len(body.Data)
		if body.Pagination.LastPage != body.Pagination.TotalPages || body.Pagination.FirstPage != 1 {
			t.Fatalf("inconsistent pagination: %+v", body.Pagination)
		}
		if body.Pagination.NextPage == nil {
			break
		}
		if *body.Pagination.NextPage != page+1 {
			t.Fatalf("next_page=%d on page %d", *body.Pagination.NextPage, page)
		}
	}
	if seen != n {
		t.Fatalf("walked %d notes, created %d", seen, n)
	}
}

func TestListNotes_WalkAllPages(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testListNotes_WalkAllPages)
}

func TestHealth_ReportsBackend(t *testing.T) {
	t.Parallel()
	store, err := testdb.NewNotesDBInMemory("api-health")
	require.NoError(t, err)
	env := newTestEnv(t, store, false)

	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Healthy","storage":"durable"}`, rec.Body.String())

	env.do(t, http.MethodPost, "/notes", `{"title":"before outage"}`)
	require.NoError(t, store.DB().Close())

	rec = env.do(t, http.MethodPost, "/notes", `{"title":"during outage"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1), decode[noteBody](t, rec).ID)

	rec = env.do(t, http.MethodGet, "/health", "")
	assert.JSONEq(t, `{"message":"Healthy","storage":"volatile"}`, rec.Body.String())
}

// failingStore always returns an uncoded, non-storage error.
type failingStore struct{ *memstore.Store }

func (f *failingStore) Get(context.Context, int64) (notes.Note, bool, error) {
	return notes.Note{}, false, errors.New("secret connection string leaked")
}

func TestUnexpectedErrorIsGeneric(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &failingStore{Store: memstore.New()}, false)

	body := assertError(t, env.do(t, http.MethodGet, "/notes/1", ""), http.StatusInternalServerError)
	assert.Equal(t, "An unexpected error occurred.", body.Message)
}

func TestRenderNote(t *testing.T) {
	t.Parallel()
	env := newMemEnv()
	env.do(t, http.MethodPost, "/notes", `{"title":"Doc","content":"# Heading\n\n<script>alert(1)</script>"}`)

	rec := env.do(t, http.MethodGet, "/notes/1/html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<h1")
	assert.NotContains(t, rec.Body.String(), "<script>alert")

	assertError(t, env.do(t, http.MethodGet, "/notes/9/html", ""), http.StatusNotFound)
}

func TestExportNotes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, memstore.New(), true)
	env.do(t, http.MethodPost, "/notes", `{"title":"a"}`)
	env.do(t, http.MethodPost, "/notes", `{"title":"b"}`)

	rec := env.do(t, http.MethodPost, "/notes/export", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[export.Result](t, rec)
	assert.Equal(t, 2, result.Count)

	data, err := env.s3.GetObject(context.Background(), result.Key)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title":"b"`)
}

func TestExportNotes_Unconfigured(t *testing.T) {
	t.Parallel()
	env := newMemEnv()
	assertError(t, env.do(t, http.MethodPost, "/notes/export", ""), http.StatusServiceUnavailable)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	t.Parallel()
	env := newMemEnv()

	assertError(t, env.do(t, http.MethodGet, "/nope", ""), http.StatusNotFound)

	rec := env.do(t, http.MethodPost, "/notes/1", `{}`)
	assertError(t, rec, http.StatusMethodNotAllowed)
	allow := rec.Header().Get("Allow")
	assert.Contains(t, allow, http.MethodGet)
	assert.Contains(t, allow, http.MethodDelete)
	assert.NotContains(t, allow, http.MethodPost)
}

func TestCORS(t *testing.T) {
	t.Parallel()
	env := newMemEnv()

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/notes/1", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	t.Parallel()
	h := CORSMiddleware([]string{"https://ok.example"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://ok.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://ok.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()
	h := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assertError(t, rec, http.StatusInternalServerError)
}

func TestRateLimited(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	RateLimited(rec, httptest.NewRequest(http.MethodGet, "/notes", nil))
	assertError(t, rec, http.StatusTooManyRequests)
}
