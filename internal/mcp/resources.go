package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	pipelinesURI      = "datapipe://pipelines"
	pipelineURIPrefix = "datapipe://pipeline/"
	fieldsURISuffix   = "/fields"
)

func (s *Server) registerResources() {
	// ── datapipe://pipelines ───────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		pipelinesURI,
		"All Pipelines",
		mcp.WithMIMEType("application/json"),
	), s.handlePipelinesResource)

	// ── datapipe://pipeline/{pipeline}/fields ──────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			pipelineURIPrefix+"{pipeline}"+fieldsURISuffix,
			"Fields written by a pipeline",
		),
		s.handlePipelineFieldsResource,
	)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePipelinesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	pipelines, err := s.pipelines.List()
	if err != nil {
		return nil, err
	}

	type pipelineSummary struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Source     string `json:"source"`
		Target     string `json:"target"`
		LastStatus string `json:"lastStatus,omitempty"`
	}

	summaries := make([]pipelineSummary, 0, len(pipelines))
	for _, p := range pipelines {
		summaries = append(summaries, pipelineSummary{
			ID:         p.ID,
			Name:       p.Name,
			Source:     p.SourceType,
			Target:     p.Target.String(),
			LastStatus: p.LastStatus,
		})
	}
	return jsonResource(pipelinesURI, summaries)
}

func (s *Server) handlePipelineFieldsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	ref := pipelineRefFromURI(uri)
	if ref == "" {
		return nil, fmt.Errorf("could not extract pipeline from URI: %s", uri)
	}

	p, err := s.pipelines.Resolve(ref)
	if err != nil {
		return nil, err
	}
	fields, err := s.pipelines.OutputFields(p.ID)
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, fieldAttributes(fields))
}

// pipelineRefFromURI extracts the pipeline from "datapipe://pipeline/{ref}/fields".
func pipelineRefFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, pipelineURIPrefix)
	if !ok {
		return ""
	}
	ref, ok := strings.CutSuffix(rest, fieldsURISuffix)
	if !ok || strings.Contains(ref, "/") {
		return ""
	}
	return ref
}
