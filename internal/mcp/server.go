package mcpserver

import (
	"context"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/mark3labs/mcp-go/server"

	"datapipe/internal/service"
)

// Server is the MCP server of datapipe. It exposes tools, resources and
// prompts so agents can inspect schemas and plan, preview and run
// pipelines.
type Server struct {
	mcp      *server.MCPServer
	approval *ApprovalQueue
	logger   log.Logger

	pipelines   *service.PipelineService
	connections *service.ConnectionRegistry
}

// Deps holds the dependencies of the MCP server.
type Deps struct {
	Pipelines   *service.PipelineService
	Connections *service.ConnectionRegistry
	Approval    *ApprovalQueue
	Logger      log.Logger
	Version     string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	approval := deps.Approval
	if approval == nil {
		approval = NewApprovalQueue(service.LogEmitter{Logger: logger}, 0)
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		approval:    approval,
		logger:      log.With(logger, "component", "mcp"),
		pipelines:   deps.Pipelines,
		connections: deps.Connections,
	}

	s.mcp = server.NewMCPServer(
		"datapipe",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerFieldTools()
	s.registerPipelineTools()
	s.registerDatabaseTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves the MCP protocol on stdin/stdout until ctx is done or
// the input is closed.
func (s *Server) ServeStdio(ctx context.Context) error {
	level.Info(s.logger).Log("msg", "starting stdio server")
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Approve forwards an approval to the approval queue.
func (s *Server) Approve(actionID string) {
	s.approval.Approve(actionID)
}

// Reject forwards a rejection to the approval queue.
func (s *Server) Reject(actionID string) {
	s.approval.Reject(actionID)
}
