package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const notesWorkflowPromptName = "notes_workflow"

const notesWorkflowText = "Notes are identified by positive integer ids and listed newest first. " +
	"Use note_list to browse (page_size up to 100), note_get to read one note in full, " +
	"note_create to add a note (title required), note_update to change title and/or content, " +
	"and note_delete to remove a note. Ids of deleted notes are never reused."

func registerPrompts(mcpServer *mcp.Server) {
	for _, prompt := range PromptDefinitions() {
		mcpServer.AddPrompt(prompt, promptHandler())
	}
}

// PromptDefinitions returns MCP prompt definitions.
func PromptDefinitions() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        notesWorkflowPromptName,
			Title:       "Notes workflow",
			Description: "Brief guidance for working with the note_* tools.",
		},
	}
}

func promptHandler() mcp.PromptHandler {
	return func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: "Brief guidance for working with the note_* tools.",
			Messages: []*mcp.PromptMessage{
				{
					Role:    mcp.Role("user"),
					Content: &mcp.TextContent{Text: notesWorkflowText},
				},
			},
		}, nil
	}
}
