package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kuitang/notekeeper/internal/errs"
	"github.com/kuitang/notekeeper/internal/export"
	"github.com/kuitang/notekeeper/internal/notes"
	"github.com/kuitang/notekeeper/internal/pagination"
	"github.com/kuitang/notekeeper/internal/render"
	"github.com/kuitang/notekeeper/internal/urlutil"
)

const (
	msgNoteNotFound  = "Note not found"
	msgTitleRequired = "title is required and must be non-empty"
	msgEmptyBody     = "Request body cannot be empty"
	msgExportOff     = "object storage is not configured"
)

// Handler serves the notes HTTP API on top of the shared notes service.
type Handler struct {
	notes    *notes.Provider
	exporter *export.Exporter
}

// NewHandler creates a new API handler. exporter may be nil, which disables
// POST /notes/export.
func NewHandler(provider *notes.Provider, exporter *export.Exporter) *Handler {
	return &Handler{notes: provider, exporter: exporter}
}

// RegisterRoutes registers all notes API routes on the given mux.
// Trailing slashes are accepted on the collection routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /notes", h.ListNotes)
	mux.HandleFunc("GET /notes/{$}", h.ListNotes)
	mux.HandleFunc("POST /notes", h.CreateNote)
	mux.HandleFunc("POST /notes/{$}", h.CreateNote)
	mux.HandleFunc("POST /notes/export", h.ExportNotes)

	mux.HandleFunc("GET /notes/{id}", h.GetNote)
	mux.HandleFunc("PUT /notes/{id}", h.UpdateNote)
	mux.HandleFunc("PATCH /notes/{id}", h.UpdateNote)
	mux.HandleFunc("DELETE /notes/{id}", h.DeleteNote)
	mux.HandleFunc("GET /notes/{id}/html", h.RenderNote)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Message string `json:"message"`
	Storage string `json:"storage"`
}

// Health handles GET /health and reports which backend is serving requests.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Message: "Healthy",
		Storage: h.notes.Service().Backend(),
	})
}

// ListResponse is the body of GET /notes.
type ListResponse struct {
	Data       []notes.Note    `json:"data"`
	Pagination pagination.Meta `json:"pagination"`
}

// ListNotes handles GET /notes - returns a page of notes, newest first.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := parsePageParams(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	result, err := h.notes.Service().List(r.Context(), page, pageSize)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Data:       result.Notes,
		Pagination: pagination.Compute(result.Total, result.Page, result.PageSize),
	})
}

// CreateNote handles POST /notes - creates a new note.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(w, r)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	title, present, err := stringField(fields, "title")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !present {
		writeError(w, http.StatusBadRequest, msgTitleRequired)
		return
	}
	content, _, err := stringField(fields, "content")
	if err != nil {
		writeErr(w, r, err)
		return
	}

	note, err := h.notes.Service().Create(r.Context(), notes.CreateNoteParams{Title: title, Content: content})
	if err != nil {
		writeErr(w, r, err)
		return
	}

	w.Header().Set("Location", urlutil.ResourceURL(r, "/notes/"+strconv.FormatInt(note.ID, 10)))
	writeJSON(w, http.StatusCreated, note)
}

// GetNote handles GET /notes/{id} - returns a single note by ID.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNoteNotFound)
		return
	}

	note, found, err := h.notes.Service().Get(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, msgNoteNotFound)
		return
	}

	writeJSON(w, http.StatusOK, note)
}

// UpdateNote handles PUT and PATCH /notes/{id}. Only supplied, non-null fields change.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNoteNotFound)
		return
	}

	fields, err := decodeObject(w, r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if len(fields) == 0 {
		writeError(w, http.StatusBadRequest, msgEmptyBody)
		return
	}

	var params notes.UpdateNoteParams
	if title, present, err := stringField(fields, "title"); err != nil {
		writeErr(w, r, err)
		return
	} else if present {
		params.Title = &title
	}
	if content, present, err := stringField(fields, "content"); err != nil {
		writeErr(w, r, err)
		return
	} else if present {
		params.Content = &content
	}

	note, found, err := h.notes.Service().Update(r.Context(), id, params)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, msgNoteNotFound)
		return
	}

	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /notes/{id} - deletes a note.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNoteNotFound)
		return
	}

	removed, err := h.notes.Service().Delete(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, msgNoteNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RenderNote handles GET /notes/{id}/html - the note as a standalone HTML page.
func (h *Handler) RenderNote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNoteNotFound)
		return
	}

	note, found, err := h.notes.Service().Get(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, msgNoteNotFound)
		return
	}

	page, err := render.Note(note)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", render.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// ExportNotes handles POST /notes/export - snapshots every note into object storage.
func (h *Handler) ExportNotes(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeErr(w, r, errs.New(errs.Unavailable, msgExportOff))
		return
	}

	result, err := h.exporter.Export(r.Context(), h.notes.Service())
	if err != nil {
		writeErr(w, r, errs.Wrap(errs.Unavailable, "export failed", err))
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// parseID reads {id}. Anything but a positive integer is treated as an unknown note.
func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func parsePageParams(r *http.Request) (page, pageSize int, err error) {
	q := r.URL.Query()
	page, pageSize = pagination.DefaultPage, pagination.DefaultPageSize

	if raw := q.Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errs.New(errs.InvalidArgument, "page must be an integer >= 1")
		}
	}
	if raw := q.Get("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 1 || pageSize > pagination.MaxPageSize {
			return 0, 0, errs.Newf(errs.InvalidArgument, "page_size must be an integer between 1 and %d", pagination.MaxPageSize)
		}
	}
	return page, pageSize, nil
}

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// decodeObject reads the body as a JSON object. An empty body decodes to an empty object.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var fields map[string]json.RawMessage
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&fields); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]json.RawMessage{}, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errs.New(errs.InvalidArgument, "request body too large")
		}
		return nil, errs.Wrap(errs.InvalidArgument, "request body must be a JSON object", err)
	}
	if fields == nil {
		// A literal null body.
		return map[string]json.RawMessage{}, nil
	}
	return fields, nil
}

// stringField reads an optional string field. A missing or null field reports present=false.
func stringField(fields map[string]json.RawMessage, name string) (value string, present bool, err error) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return "", false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false, errs.Newf(errs.InvalidArgument, "%s must be a string", name)
	}
	return value, true, nil
}
