// Package mcpserver exposes a ToolBox over the Model Context Protocol using
// the official MCP Go SDK.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/germanamz/ledgerd/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Options configures an MCPServer.
type Options struct {
	// Instructions are sent to clients during initialization.
	Instructions string
	Logger       *slog.Logger
}

// MCPServer serves the tools of a ToolBox over MCP.
type MCPServer struct {
	server *mcp.Server
	tools  *toolbox.ToolBox
	log    *slog.Logger
}

// New creates an MCPServer with the given name and version exposing every
// tool in tb at the time of the call.
func New(name, version string, tb *toolbox.ToolBox, opts Options) *MCPServer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, &mcp.ServerOptions{Instructions: opts.Instructions})

	s := &MCPServer{server: server, tools: tb, log: opts.Logger}
	for _, t := range tb.Tools() {
		server.AddTool(toSDKTool(t), s.handler(t.Name))
	}

	return s
}

// Serve reads MCP requests from in and writes responses to out. It blocks
// until ctx is cancelled or the transport closes.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.run(ctx, transport)
}

// run is split from Serve so tests can use in-memory transports.
func (s *MCPServer) run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func toSDKTool(t toolbox.Tool) *mcp.Tool {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// handler routes an SDK call through the ToolBox so both frontends share the
// same result semantics.
func (s *MCPServer) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := s.tools.Call(ctx, name, req.Params.Arguments)
		if res.IsError {
			s.log.Debug("mcpserver: tool failed", "tool", name, "error", res.Content)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Content}},
			IsError: res.IsError,
		}, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
