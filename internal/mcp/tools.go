package mcp

import (
	"github.com/kuitang/notekeeper/internal/pagination"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names.
const (
	ToolNoteCreate = "note_create"
	ToolNoteGet    = "note_get"
	ToolNoteUpdate = "note_update"
	ToolNoteDelete = "note_delete"
	ToolNoteList   = "note_list"
)

func idProperty(description string) map[string]any {
	return map[string]any{
		"type":        "integer",
		"minimum":     1,
		"description": description,
	}
}

// ToolDefinitions returns the notes MCP tool definitions.
func ToolDefinitions() []*mcp.Tool {
	return []*mcp.Tool{
		{
			Name:        ToolNoteCreate,
			Description: "Create a new note with a title and optional content. The title is trimmed and must not be empty. Returns the stored note with its assigned integer id and timestamps.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "The title of the note (required, non-empty)",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The content/body of the note (optional)",
					},
				},
				"required": []string{"title"},
			},
		},
		{
			Name:        ToolNoteGet,
			Description: "Read a single note by id, including its full content.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": idProperty("The id of the note to read"),
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        ToolNoteUpdate,
			Description: "Replace a note's title and/or content. Omitted fields are left unchanged. At least one of title or content must be given. Every update refreshes updated_at.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": idProperty("The id of the note to update"),
					"title": map[string]any{
						"type":        "string",
						"description": "The new title (optional, non-empty if given)",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The new content (optional)",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        ToolNoteDelete,
			Description: "Delete a note by id. Deleted ids are never reused.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": idProperty("The id of the note to delete"),
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        ToolNoteList,
			Description: "List notes newest first, one page at a time. Returns the notes on the page plus pagination metadata (total, total_pages, previous_page, next_page).",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"page": map[string]any{
						"type":        "integer",
						"minimum":     1,
						"description": "Page number, starting at 1 (default 1)",
					},
					"page_size": map[string]any{
						"type":        "integer",
						"minimum":     1,
						"maximum":     pagination.MaxPageSize,
						"description": "Notes per page (default 10)",
					},
				},
			},
		},
	}
}
