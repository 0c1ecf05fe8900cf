package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"datapipe/internal/metadata"
)

const fieldsHelp = `JSON array of fields. Each item is a name, a [name, storage_type, analytical_type] array or an attribute object {name, label, storage_type, analytical_type, size, missing_value, info, description}. Example: ["id", ["amount", "number", "measure"]]`

func (s *Server) registerFieldTools() {
	s.mcp.AddTool(mcp.NewTool("filter_fields",
		mcp.WithDescription("Apply a keep/drop/rename filter to a field list and return the resulting fields. Kept fields are reordered in keep order; renamed fields are copies that remember their origin."),
		mcp.WithString("fieldsJSON", mcp.Description(fieldsHelp), mcp.Required()),
		mcp.WithString("keepJSON", mcp.Description(`JSON array of field names to keep, e.g. ["id","name"]`)),
		mcp.WithString("dropJSON", mcp.Description("JSON array of field names to drop")),
		mcp.WithString("renameJSON", mcp.Description(`JSON object mapping old names to new names, e.g. {"amt":"amount"}`)),
	), s.handleFilterFields)

	s.mcp.AddTool(mcp.NewTool("aggregate_fields",
		mcp.WithDescription("Derive the output fields of an aggregation. Measures are named <field>_<aggregate>; a record count field is appended unless includeCount is false."),
		mcp.WithString("fieldsJSON", mcp.Description(fieldsHelp), mcp.Required()),
		mcp.WithString("measuresJSON", mcp.Description(`JSON array of measures: names or [name, aggregate] pairs where aggregate is a name or a list of names. Example: ["amount", ["price", ["min", "max"]]]`), mcp.Required()),
		mcp.WithString("defaultAggregatesJSON", mcp.Description(`JSON array of aggregates used for measures without their own (default ["sum"])`)),
		mcp.WithBoolean("includeCount", mcp.Description("Append a record count field (default true)")),
		mcp.WithString("countField", mcp.Description("Name of the record count field (default record_count)")),
	), s.handleAggregateFields)

	s.mcp.AddTool(mcp.NewTool("prepare_order",
		mcp.WithDescription("Normalize a sort order into (field, direction) pairs and check every field exists."),
		mcp.WithString("fieldsJSON", mcp.Description(fieldsHelp), mcp.Required()),
		mcp.WithString("orderJSON", mcp.Description(`JSON order list: names or [name, "asc"|"desc"] pairs, e.g. ["region", ["amount", "desc"]]`), mcp.Required()),
	), s.handlePrepareOrder)
}

func (s *Server) handleFilterFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	fields, err := fieldsArg(args, "fieldsJSON")
	if err != nil {
		return nil, err
	}

	var keep, drop []string
	var rename map[string]string
	if err := jsonArg(args, "keepJSON", &keep); err != nil {
		return nil, err
	}
	if err := jsonArg(args, "dropJSON", &drop); err != nil {
		return nil, err
	}
	if err := jsonArg(args, "renameJSON", &rename); err != nil {
		return nil, err
	}

	filter, err := metadata.NewFieldFilter(keep, drop, rename)
	if err != nil {
		return nil, err
	}
	out, err := filter.Filter(fields)
	if err != nil {
		return nil, fmt.Errorf("filter fields: %w", err)
	}
	return jsonResult(map[string]any{
		"fields": fieldAttributes(out),
		"mask":   filter.FieldMask(fields),
	})
}

func (s *Server) handleAggregateFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	fields, err := fieldsArg(args, "fieldsJSON")
	if err != nil {
		return nil, err
	}

	var measures any
	var defaults []string
	if err := jsonArg(args, "measuresJSON", &measures); err != nil {
		return nil, err
	}
	if err := jsonArg(args, "defaultAggregatesJSON", &defaults); err != nil {
		return nil, err
	}

	aggregations, err := metadata.DistillAggregateMeasures(measures, defaults)
	if err != nil {
		return nil, err
	}
	out, err := fields.AggregatedFields(aggregations, getBool(args, "includeCount", true), req.GetString("countField", ""))
	if err != nil {
		return nil, fmt.Errorf("aggregate fields: %w", err)
	}
	return jsonResult(map[string]any{
		"aggregations": pairList(aggregations),
		"fields":       fieldAttributes(out),
	})
}

func (s *Server) handlePrepareOrder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	fields, err := fieldsArg(args, "fieldsJSON")
	if err != nil {
		return nil, err
	}
	var order any
	if err := jsonArg(args, "orderJSON", &order); err != nil {
		return nil, err
	}

	pairs, err := metadata.PrepareOrderList(order)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if !fields.Contains(p.Field) {
			return nil, fmt.Errorf("%w: %q", metadata.ErrNoSuchField, p.Field)
		}
	}
	return jsonResult(pairList(pairs))
}

// pairList renders pairs as two element arrays.
func pairList(pairs []metadata.Pair) [][2]string {
	out := make([][2]string, len(pairs))
	for i, p := range pairs {
		out[i] = [2]string{p.Field, p.Value}
	}
	return out
}
