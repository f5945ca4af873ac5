package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/kuitang/notekeeper/internal/errs"
	"github.com/kuitang/notekeeper/internal/notes"
	"github.com/kuitang/notekeeper/internal/pagination"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler implements MCP tool call handling.
type Handler struct {
	notes *notes.Provider
}

// NewHandler creates a new MCP handler over the shared notes service.
func NewHandler(provider *notes.Provider) *Handler {
	return &Handler{notes: provider}
}

// createToolHandler returns a tool handler function for the given tool name.
func (h *Handler) createToolHandler(name string) func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		result, err := h.HandleToolCall(ctx, name, args)
		return result, nil, err
	}
}

// HandleToolCall routes tool calls to appropriate handlers.
// Failures are reported inside the result with IsError set, never as a Go error.
func (h *Handler) HandleToolCall(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	var (
		value any
		err   error
	)
	switch name {
	case ToolNoteCreate:
		value, err = h.handleNoteCreate(ctx, arguments)
	case ToolNoteGet:
		value, err = h.handleNoteGet(ctx, arguments)
	case ToolNoteUpdate:
		value, err = h.handleNoteUpdate(ctx, arguments)
	case ToolNoteDelete:
		value, err = h.handleNoteDelete(ctx, arguments)
	case ToolNoteList:
		value, err = h.handleNoteList(ctx, arguments)
	default:
		err = errs.Newf(errs.NotFound, "unknown tool: %s", name)
	}
	if err != nil {
		return newToolResultError(err), nil
	}
	return newToolResultText(marshalToolJSON(value)), nil
}

// toolErrorPayload is the JSON body of a failed tool call.
type toolErrorPayload struct {
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
}

// newToolResultText creates a successful tool result with text content.
func newToolResultText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// newToolResultError creates a tool result indicating an error.
func newToolResultError(err error) *mcp.CallToolResult {
	payload := toolErrorPayload{Code: errs.CodeOf(err), Message: errs.MessageOf(err)}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: marshalToolJSON(payload)},
		},
		IsError: true,
	}
}

func marshalToolJSON(value any) string {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response","detail":%q}`, err.Error())
	}
	return string(data)
}

// decodeToolArgs decodes tool arguments into dst. Unknown fields and wrong types are
// invalid arguments. A nil map decodes like an empty object.
func decodeToolArgs(args map[string]any, dst any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "arguments must be a JSON object", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid arguments: %v", err), err)
	}
	return nil
}

type noteIDArgs struct {
	ID int64 `json:"id"`
}

type noteCreateArgs struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type noteUpdateArgs struct {
	ID      int64   `json:"id"`
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type noteListArgs struct {
	Page     *int `json:"page"`
	PageSize *int `json:"page_size"`
}

// noteListResult mirrors the body of GET /notes.
type noteListResult struct {
	Data       []notes.Note    `json:"data"`
	Pagination pagination.Meta `json:"pagination"`
}

type noteDeleteResult struct {
	ID      int64 `json:"id"`
	Deleted bool  `json:"deleted"`
}

func noteNotFound(id int64) error {
	return errs.Newf(errs.NotFound, "note %d not found", id)
}

func (h *Handler) handleNoteCreate(ctx context.Context, args map[string]any) (any, error) {
	var in noteCreateArgs
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Title == nil {
		return nil, notes.ErrTitleRequired
	}
	params := notes.CreateNoteParams{Title: *in.Title}
	if in.Content != nil {
		params.Content = *in.Content
	}
	return h.notes.Service().Create(ctx, params)
}

func (h *Handler) handleNoteGet(ctx context.Context, args map[string]any) (any, error) {
	var in noteIDArgs
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	note, found, err := h.notes.Service().Get(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, noteNotFound(in.ID)
	}
	return note, nil
}

func (h *Handler) handleNoteUpdate(ctx context.Context, args map[string]any) (any, error) {
	var in noteUpdateArgs
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Title == nil && in.Content == nil {
		return nil, errs.New(errs.InvalidArgument, "at least one of title or content is required")
	}
	note, found, err := h.notes.Service().Update(ctx, in.ID, notes.UpdateNoteParams{Title: in.Title, Content: in.Content})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, noteNotFound(in.ID)
	}
	return note, nil
}

func (h *Handler) handleNoteDelete(ctx context.Context, args map[string]any) (any, error) {
	var in noteIDArgs
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	removed, err := h.notes.Service().Delete(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, noteNotFound(in.ID)
	}
	return noteDeleteResult{ID: in.ID, Deleted: true}, nil
}

func (h *Handler) handleNoteList(ctx context.Context, args map[string]any) (any, error) {
	var in noteListArgs
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	page, pageSize := pagination.DefaultPage, pagination.DefaultPageSize
	if in.Page != nil {
		page = *in.Page
	}
	if in.PageSize != nil {
		pageSize = *in.PageSize
	}
	if pageSize > pagination.MaxPageSize {
		return nil, errs.Newf(errs.InvalidArgument, "page_size must be between 1 and %d", pagination.MaxPageSize)
	}

	result, err := h.notes.Service().List(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}
	return noteListResult{
		Data:       result.Notes,
		Pagination: pagination.Compute(result.Total, result.Page, result.PageSize),
	}, nil
}
