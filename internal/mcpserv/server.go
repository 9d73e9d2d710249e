// Package mcpserv exposes the session core as an MCP stdio server, the tool
// surface an agent host connects to. Logging goes to stderr; stdout belongs
// to the protocol transport.
package mcpserv

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/simon/sshmux/internal/session"
)

// Server wires the session manager into an MCP server instance.
type Server struct {
	mgr *session.Manager
	mcp *server.MCPServer
}

// New builds the MCP server with all tools and resources registered.
func New(mgr *session.Manager, version string) *Server {
	s := &Server{
		mgr: mgr,
		mcp: server.NewMCPServer(
			"sshmux",
			version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerResources() {
	tmpl := mcp.NewResourceTemplate(
		"sshmux://{session_id}/snapshot",
		"Session snapshot",
		mcp.WithTemplateDescription("Live sanitized snapshot of a session's terminal screen"),
		mcp.WithTemplateMIMEType("text/plain"),
	)
	s.mcp.AddResourceTemplate(tmpl, s.handleSnapshotResource)
}

func (s *Server) handleSnapshotResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, ok := sessionIDFromURI(req.Params.URI)
	if !ok {
		return nil, fmt.Errorf("malformed resource URI %q", req.Params.URI)
	}
	snap, err := s.mgr.GetSnapshot(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     snap.Annotated(),
		},
	}, nil
}

// sessionIDFromURI extracts the id from sshmux://{session_id}/snapshot.
func sessionIDFromURI(uri string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, "sshmux://")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/snapshot")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
