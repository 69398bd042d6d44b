// Package engine is the composition root that assembles the device session
// core from configuration: discovery source, connection tracker, device
// session, control channel and seed selector. Frontends (the websocket control
// server, the MCP tool server, the CLI) interact with Engine and never build
// the lower-level pieces themselves.
package engine
