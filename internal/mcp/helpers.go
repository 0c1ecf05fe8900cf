package mcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"datapipe/internal/etl"
	"datapipe/internal/metadata"
)

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// jsonArg decodes a JSON argument into target. Arguments may arrive as a
// JSON encoded string or as an already decoded value. A missing argument
// leaves target untouched.
func jsonArg(args map[string]any, key string, target any) error {
	var data []byte
	switch v := args[key].(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		data = b
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	return nil
}

// fieldsArg decodes a JSON list of field specs: names, [name, storage,
// analytical] triples or attribute objects.
func fieldsArg(args map[string]any, key string) (*metadata.FieldList, error) {
	var values []any
	if err := jsonArg(args, key, &values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s is required", key)
	}
	return metadata.FieldListOf(values...)
}

func getFloat(args map[string]any, key string, def float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return def
}

func boolPtr(b bool) *bool { return &b }

// fieldAttributes renders a field list as a list of attribute objects.
func fieldAttributes(fields *metadata.FieldList) []map[string]any {
	if fields == nil {
		return []map[string]any{}
	}
	out := make([]map[string]any, 0, fields.Len())
	for _, f := range fields.Slice() {
		out = append(out, f.Attributes())
	}
	return out
}

type datasetResult struct {
	Fields []map[string]any `json:"fields"`
	Rows   []etl.Row        `json:"rows"`
}

func newDatasetResult(ds *etl.Dataset) datasetResult {
	rows := ds.Rows
	if rows == nil {
		rows = []etl.Row{}
	}
	return datasetResult{Fields: fieldAttributes(ds.Fields), Rows: rows}
}

func getBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
