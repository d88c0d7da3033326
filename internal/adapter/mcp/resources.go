package mcp

import (
	"context"
	"encoding/json"
	"errors"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/LoopForge/internal/domain/artifact"
	"github.com/Strob0t/LoopForge/internal/domain/cycle"
)

// resourceEventLimit caps the events resource; the full log stays on disk.
const resourceEventLimit = 50

var artifactTitles = map[string]string{
	artifact.NameSpec:    "Specification",
	artifact.NamePlan:    "Implementation Plan",
	artifact.NameHandoff: "Implementation Handoff",
	artifact.NameReview:  "Review",
}

// registerResources exposes the loop state, the event log, and the known
// artifacts as MCP resources.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"loopforge://state",
			"Run State",
			mcplib.WithResourceDescription("Current loop state"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStateResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"loopforge://events",
			"Event Log",
			mcplib.WithResourceDescription("Most recent loop events, oldest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleEventsResource,
	)

	for _, name := range artifact.Known() {
		s.mcpServer.AddResource(
			mcplib.NewResource(
				"loopforge://artifacts/"+name,
				artifactTitles[name],
				mcplib.WithResourceDescription("Artifact "+name),
				mcplib.WithMIMEType("text/markdown"),
			),
			s.artifactResourceHandler(name),
		)
	}
}

func (s *Server) handleStateResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.State == nil {
		return textResource(req.Params.URI, "application/json", `{"error":"state store not configured"}`), nil
	}
	st, err := s.deps.State.Load(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, "application/json", string(data)), nil
}

func (s *Server) handleEventsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.State == nil {
		return textResource(req.Params.URI, "application/json", `{"error":"state store not configured"}`), nil
	}
	events, err := s.deps.State.Events(ctx, resourceEventLimit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []cycle.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return nil, err
	}
	return textResource(req.Params.URI, "application/json", string(data)), nil
}

func (s *Server) artifactResourceHandler(name string) func(context.Context, mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	return func(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
		if s.deps.Artifacts == nil {
			return nil, errors.New("artifact store not configured")
		}
		content, err := s.deps.Artifacts.Read(ctx, name)
		if err != nil {
			return nil, err
		}
		return textResource(req.Params.URI, "text/markdown", content), nil
	}
}

func textResource(uri, mimeType, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: mimeType,
			Text:     text,
		},
	}
}
