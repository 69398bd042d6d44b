// Package tools exposes device operations as named tools with JSON Schema
// inputs.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/ledgerd/pkg/tools/toolbox]: Tool type and ToolBox for registering, listing, and calling tools, plus an HTTP handler
//   - [github.com/germanamz/ledgerd/pkg/tools/mcpserver]: MCP server using the official MCP Go SDK for exposing a ToolBox over the MCP protocol
//
// The concrete device tools live in [github.com/germanamz/ledgerd/pkg/devicetools].
package tools
