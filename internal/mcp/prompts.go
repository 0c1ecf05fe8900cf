package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("design_pipeline",
		mcp.WithPromptDescription("Guide through designing a pipeline from a source to a target table"),
		mcp.WithArgument("sourceType",
			mcp.ArgumentDescription("Source type (e.g. csv_file, json_file, http, database)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("description",
			mcp.ArgumentDescription("What this pipeline should produce"),
			mcp.RequiredArgument(),
		),
	), s.handleDesignPipelinePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("summarize_table",
		mcp.WithPromptDescription("Build an aggregate summary of a database table"),
		mcp.WithArgument("connection",
			mcp.ArgumentDescription("Connection name"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("table",
			mcp.ArgumentDescription("Table or collection name"),
			mcp.RequiredArgument(),
		),
	), s.handleSummarizeTablePrompt)
}

func (s *Server) handleDesignPipelinePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sourceType := req.Params.Arguments["sourceType"]
	description := req.Params.Arguments["description"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Design a %s pipeline", sourceType),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Design a data pipeline: %s. Follow these steps:

1. Use list_sources to find the configuration fields of the "%s" source
2. Use describe_source to discover its fields and their storage types
3. Use preview_source to look at a few rows
4. Choose transforms (select, filter, aggregate, sort, ...) and check the resulting fields with filter_fields and aggregate_fields
5. Preview the source again with the transforms applied
6. Write the pipeline declaration for the configuration file, with its target connection and table

Explain the fields of the final output and how each one is derived.`, description, sourceType),
				},
			},
		},
	}, nil
}

func (s *Server) handleSummarizeTablePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	connection := req.Params.Arguments["connection"]
	table := req.Params.Arguments["table"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Summarize %s.%s", connection, table),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Summarize the table "%s" of connection "%s". Follow these steps:

1. Use describe_table to list its fields
2. Pick the dimension fields to group by and the measure fields to aggregate
3. Use aggregate_fields to check the output fields
4. Use preview_source with the "database" source and an aggregate transform to compute the summary

Report the summary as a short table.`, table, connection),
				},
			},
		},
	}, nil
}
