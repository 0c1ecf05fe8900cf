package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"datapipe/internal/domain"
)

func (s *Server) registerDatabaseTools() {
	s.mcp.AddTool(mcp.NewTool("list_connections",
		mcp.WithDescription("List the configured database connections"),
	), s.handleListConnections)

	s.mcp.AddTool(mcp.NewTool("introspect_database",
		mcp.WithDescription("Get the tables and columns of a database connection"),
		mcp.WithString("connection", mcp.Description("Connection name"), mcp.Required()),
	), s.handleIntrospectDatabase)

	s.mcp.AddTool(mcp.NewTool("describe_table",
		mcp.WithDescription("Get the fields of a table or collection, with their storage and analytical types"),
		mcp.WithString("connection", mcp.Description("Connection name"), mcp.Required()),
		mcp.WithString("table", mcp.Description("Table or collection name"), mcp.Required()),
	), s.handleDescribeTable)
}

type connectionSummary struct {
	Name     string                `json:"name"`
	Driver   domain.DatabaseDriver `json:"driver"`
	Host     string                `json:"host"`
	Database string                `json:"database,omitempty"`
}

func (s *Server) handleListConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summaries := []connectionSummary{}
	if s.connections != nil {
		for _, name := range s.connections.Names() {
			c, err := s.connections.Get(name)
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, connectionSummary{Name: c.Name, Driver: c.Driver, Host: c.Host, Database: c.Database})
		}
	}
	return jsonResult(summaries)
}

func (s *Server) handleIntrospectDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("connection", "")
	if name == "" {
		return nil, fmt.Errorf("connection is required")
	}
	if s.connections == nil {
		return nil, fmt.Errorf("no connections configured")
	}
	conn, err := s.connections.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	schema, err := conn.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect: %w", err)
	}
	return jsonResult(schema)
}

func (s *Server) handleDescribeTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("connection", "")
	table := req.GetString("table", "")
	if name == "" || table == "" {
		return nil, fmt.Errorf("connection and table are required")
	}
	if s.connections == nil {
		return nil, fmt.Errorf("no connections configured")
	}
	conn, err := s.connections.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	fields, err := conn.Describe(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	return jsonResult(fieldAttributes(fields))
}
