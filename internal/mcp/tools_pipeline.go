package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"datapipe/internal/etl"
)

const transformsHelp = `Optional JSON array of transforms applied in sequence. Each transform has {type, config}. Available types:
- field_filter: {keep, drop, rename}: keep or drop columns, rename the rest
- select: {fields: ["col1","col2"]}: keep only these columns, in this order
- rename: {mapping: {oldName: newName}}: rename columns
- filter: {field, op (eq|neq|gt|gte|lt|lte|contains), value}: drop rows not matching
- sort: {order: ["a", ["b","desc"]]} or {field, direction (asc|desc)}: stable sort
- aggregate: {key, measures, default_aggregates, include_count, count_field}: group rows; aggregates sum|avg|min|max|count
- distinct: {key}: unique key values
- dedupe: {key}: keep the first row per key
- limit: {count}: cap number of rows
- type_cast: {field, storage_type (integer|number|string|text|boolean)}: convert a column
Example: [{"type":"filter","config":{"field":"age","op":"gt","value":18}},{"type":"aggregate","config":{"key":"region","measures":["amount"]}}]`

func (s *Server) registerPipelineTools() {
	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List available source types with their configuration fields"),
	), s.handleListSources)

	s.mcp.AddTool(mcp.NewTool("describe_source",
		mcp.WithDescription("Discover the fields of a source without reading all of its rows"),
		mcp.WithString("sourceType", mcp.Description("Source type (use list_sources to see available types)"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
	), s.handleDescribeSource)

	s.mcp.AddTool(mcp.NewTool("preview_source",
		mcp.WithDescription("Preview rows of a source, optionally through transforms, without writing anything"),
		mcp.WithString("sourceType", mcp.Description("Source type"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithString("transformsJSON", mcp.Description(transformsHelp)),
		mcp.WithNumber("maxRows", mcp.Description("Maximum rows to return (default 10)")),
	), s.handlePreviewSource)

	s.mcp.AddTool(mcp.NewTool("list_pipelines",
		mcp.WithDescription("List configured pipelines with their last run status"),
	), s.handleListPipelines)

	s.mcp.AddTool(mcp.NewTool("describe_pipeline",
		mcp.WithDescription("Show a pipeline, the fields it last wrote and its recent runs"),
		mcp.WithString("pipeline", mcp.Description("Pipeline ID or name"), mcp.Required()),
	), s.handleDescribePipeline)

	s.mcp.AddTool(mcp.NewTool("plan_pipeline",
		mcp.WithDescription("Derive the fields of a pipeline at the source, after each transform and at the output"),
		mcp.WithString("pipeline", mcp.Description("Pipeline ID or name"), mcp.Required()),
	), s.handlePlanPipeline)

	s.mcp.AddTool(mcp.NewTool("run_pipeline",
		mcp.WithDescription("🛑 DESTRUCTIVE: Run a pipeline. May overwrite the target table. Requires approval."),
		mcp.WithString("pipeline", mcp.Description("Pipeline ID or name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunPipeline)
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.pipelines.ListSources())
}

func sourceArgs(req mcp.CallToolRequest) (string, etl.SourceConfig, error) {
	args := req.GetArguments()
	sourceType := req.GetString("sourceType", "")
	if sourceType == "" {
		return "", nil, fmt.Errorf("sourceType is required")
	}
	var cfg etl.SourceConfig
	if err := jsonArg(args, "sourceConfigJSON", &cfg); err != nil {
		return "", nil, err
	}
	if cfg == nil {
		return "", nil, fmt.Errorf("sourceConfigJSON is required")
	}
	return sourceType, cfg, nil
}

func (s *Server) handleDescribeSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceType, cfg, err := sourceArgs(req)
	if err != nil {
		return nil, err
	}
	fields, err := s.pipelines.DiscoverSchema(ctx, sourceType, cfg)
	if err != nil {
		return nil, fmt.Errorf("describe source: %w", err)
	}
	return jsonResult(fieldAttributes(fields))
}

func (s *Server) handlePreviewSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sourceType, cfg, err := sourceArgs(req)
	if err != nil {
		return nil, err
	}
	var transforms []etl.TransformConfig
	if err := jsonArg(args, "transformsJSON", &transforms); err != nil {
		return nil, err
	}

	ds, err := s.pipelines.PreviewSource(ctx, sourceType, cfg, transforms, int(getFloat(args, "maxRows", 0)))
	if err != nil {
		return nil, fmt.Errorf("preview source: %w", err)
	}
	return jsonResult(newDatasetResult(ds))
}

func (s *Server) handleListPipelines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pipelines, err := s.pipelines.List()
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	if pipelines == nil {
		pipelines = []etl.Pipeline{}
	}
	return jsonResult(pipelines)
}

func (s *Server) resolvePipeline(req mcp.CallToolRequest) (*etl.Pipeline, error) {
	ref := req.GetString("pipeline", "")
	if ref == "" {
		return nil, fmt.Errorf("pipeline is required")
	}
	p, err := s.pipelines.Resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", ref, err)
	}
	return p, nil
}

func (s *Server) handleDescribePipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.resolvePipeline(req)
	if err != nil {
		return nil, err
	}
	fields, err := s.pipelines.OutputFields(p.ID)
	if err != nil {
		return nil, fmt.Errorf("output fields: %w", err)
	}
	runs, err := s.pipelines.ListRunLogs(p.ID)
	if err != nil {
		return nil, fmt.Errorf("run logs: %w", err)
	}
	if runs == nil {
		runs = []etl.SyncRunLog{}
	}
	return jsonResult(map[string]any{
		"pipeline":     p,
		"outputFields": fieldAttributes(fields),
		"runs":         runs,
	})
}

func (s *Server) handlePlanPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.resolvePipeline(req)
	if err != nil {
		return nil, err
	}
	plan, err := s.pipelines.PlanPipeline(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("plan pipeline: %w", err)
	}

	stages := make([]map[string]any, len(plan.Stages))
	for i, fields := range plan.Stages {
		stages[i] = map[string]any{
			"transform": p.Transforms[i].Type,
			"fields":    fieldAttributes(fields),
		}
	}
	return jsonResult(map[string]any{
		"source": fieldAttributes(plan.Source),
		"stages": stages,
		"output": fieldAttributes(plan.Output),
	})
}

func (s *Server) handleRunPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.resolvePipeline(req)
	if err != nil {
		return nil, err
	}

	approved, err := s.approval.Request(ctx, "run_pipeline",
		fmt.Sprintf("Run pipeline %s (%s mode into %s)", p.Name, p.SyncMode, p.Target))
	if err != nil || !approved {
		return textResult("Action rejected by user"), nil
	}

	result, err := s.pipelines.RunPipeline(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}
	return jsonResult(result)
}
